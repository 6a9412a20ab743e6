package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmcache/internal/config"
	"github.com/calvinalkan/shmcache/internal/fs"
	"github.com/calvinalkan/shmcache/internal/shm"
)

var (
	errMissingKey   = errors.New("key is required")
	errTooManyArgs  = errors.New("too many arguments")
	errUnknownCmd   = errors.New("unknown command")
	errEmptySegment = errors.New("--segment cannot be empty")
	errValueAndFile = errors.New("value argument and --file are mutually exclusive")

	errBelowWatermark = &exitError{code: 2}
)

// app is what every command closes over: the resolved config and the
// collaborators that act on it.
type app struct {
	cfg   config.Config
	fs    fs.FS
	mgr   *shm.Manager
	stdin io.Reader
	env   map[string]string
}

// attach maps the configured segment.
func (a *app) attach() (*shm.Handle, error) {
	return a.mgr.Attach(a.cfg.SegmentPath())
}

// Run is the main entry point. Returns exit code.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	return run(context.Background(), stdin, out, errOut, args, env, fs.NewReal())
}

func run(ctx context.Context, stdin io.Reader, out, errOut io.Writer, args []string, env map[string]string, fsys fs.FS) int {
	globals := flag.NewFlagSet("shmq", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	segment := globals.StringP("segment", "s", "", "Segment name or `path`")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	if globals.Changed("segment") && *segment == "" {
		fprintln(errOut, "error:", errEmptySegment)
		printUsage(errOut, globals, nil)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    *workDir,
		ConfigPath: *configPath,
		Overrides:  config.Config{Segment: *segment},
		Env:        env,
		FS:         fsys,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a := &app{cfg: cfg, fs: fsys, mgr: shm.NewManager(fsys), stdin: stdin, env: env}
	commands := allCommands(a)

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals, commands)

		return 0
	}

	name := rest[0]

	var cmd *Command

	for _, c := range commands {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCmd, name))
		printUsage(errOut, globals, commands)

		return 1
	}

	o := NewIO(out, errOut)

	code := cmd.Run(ctx, o, rest[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

func allCommands(a *app) []*Command {
	return []*Command{
		CreateCmd(a),
		DestroyCmd(a),
		InfoCmd(a),
		SyncCmd(a),
		StoreCmd(a),
		FetchCmd(a),
		PeekCmd(a),
		DeleteCmd(a),
		OldestCmd(a),
		WatermarkCmd(a),
		InUseCmd(a),
		DumpCmd(a),
		ReplCmd(a),
		PrintConfigCmd(a),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `shmq - LRU cache in shared memory

Usage: shmq [flags] <command> [args]

Global flags:`)
	fprintln(w, strings.TrimRight(globals.FlagUsages(), "\n"))

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'shmq <command> --help' for command flags.")
}

// keyArg extracts the single key argument of key-addressed commands.
func keyArg(args []string) (string, error) {
	switch {
	case len(args) == 0:
		return "", errMissingKey
	case len(args) > 1:
		return "", fmt.Errorf("%w: %s", errTooManyArgs, strings.Join(args[1:], " "))
	}

	return args[0], nil
}

func noArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s", errTooManyArgs, strings.Join(args, " "))
	}

	return nil
}
