package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/shmcache/internal/shm"
)

// ReplCmd returns the repl command.
func ReplCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("repl", flag.ContinueOnError),
		Usage: "repl",
		Short: "Interactive shell on an attached segment",
		Long: `Attach the segment once and read commands interactively.

On a terminal the shell has line editing, tab completion and history
(~/.shmq_history). Otherwise commands are read line by line from stdin,
which makes it scriptable.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			r := &repl{h: h, o: o}

			if isTerminal(a.stdin) {
				p := newLinerPrompter(historyFile(a.env))
				defer p.Close()

				return r.run(ctx, p)
			}

			return r.run(ctx, &scanPrompter{sc: bufio.NewScanner(a.stdin)})
		},
	}
}

// prompter yields input lines. io.EOF ends the session.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
}

var replCommands = []string{
	"store", "set", "fetch", "get", "peek", "delete", "del",
	"oldest", "inuse", "watermark", "info", "dump",
	"help", "exit", "quit", "q",
}

type repl struct {
	h *shm.Handle
	o *IO
}

func (r *repl) run(ctx context.Context, p prompter) error {
	for ctx.Err() == nil {
		line, err := p.Prompt("shmq> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p.AppendHistory(line)

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			return nil
		}

		err = r.exec(strings.ToLower(cmd), rest)
		if err != nil {
			r.o.Println("error:", err)
		}
	}

	return ctx.Err()
}

// exec runs one shell command. Errors are reported and the shell goes on.
func (r *repl) exec(cmd, rest string) error {
	switch cmd {
	case "store", "set":
		key, value, _ := strings.Cut(rest, " ")
		if key == "" {
			return errMissingKey
		}

		err := r.h.Store(key, []byte(value))
		if err != nil {
			return err
		}

		r.o.Println("ok")

	case "fetch", "get", "peek":
		if rest == "" {
			return errMissingKey
		}

		var (
			payload []byte
			err     error
		)

		if cmd == "peek" {
			payload, err = r.h.Peek(rest)
		} else {
			payload, err = r.h.Fetch(rest, nil)
		}

		if err != nil {
			return err
		}

		r.o.Printf("%s\n", payload)

	case "delete", "del":
		if rest == "" {
			return errMissingKey
		}

		err := r.h.Delete(rest)
		if err != nil {
			return err
		}

		r.o.Println("ok")

	case "oldest":
		kv, err := r.h.GetOldest()
		if err != nil {
			return err
		}

		r.o.Printf("%s\t%s\n", kv.Key, kv.Payload)

	case "inuse":
		r.o.Println(r.h.InUse())

	case "watermark":
		r.o.Println(r.h.Watermark())

	case "info":
		st := r.h.Stats()
		r.o.Printf("slots=%d in_use=%d usage=%.2f%% buckets=%d key_size=%d payload_size=%d hash=%s\n",
			st.Capacity, st.InUse, st.UsagePercent, st.BucketCount, st.KeySize, st.PayloadSize, st.Hash)

	case "dump":
		_, _ = r.o.Write(formatSnapshotText(r.h.Snapshot()))

	case "help", "?":
		r.printHelp()

	default:
		return fmt.Errorf("%w: %s (type 'help' for commands)", errUnknownCmd, cmd)
	}

	return nil
}

func (r *repl) printHelp() {
	r.o.Println("Commands:")
	r.o.Println("  store <key> <value...>   Insert or replace an entry")
	r.o.Println("  fetch <key>              Print a copy of the payload, mark most recently used")
	r.o.Println("  peek <key>               Print payload without copying, mark most recently used")
	r.o.Println("  delete <key>             Remove an entry")
	r.o.Println("  oldest                   Evict and print the least recently used entry")
	r.o.Println("  inuse                    Number of entries")
	r.o.Println("  watermark                Whether usage reached 7/8 of the slots")
	r.o.Println("  info                     Geometry and usage")
	r.o.Println("  dump                     Free list, LRU order and bucket chains")
	r.o.Println("  help                     Show this help")
	r.o.Println("  exit / quit / q          Exit")
}

func completeCommand(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range replCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

// scanPrompter reads lines from a non-interactive stream.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (s *scanPrompter) Prompt(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}

	if err := s.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (s *scanPrompter) AppendHistory(string) {}

// linerPrompter is the interactive prompter with history and completion.
type linerPrompter struct {
	*liner.State

	history string
}

func newLinerPrompter(history string) *linerPrompter {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(completeCommand)

	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}

	return &linerPrompter{State: state, history: history}
}

// Close saves the history and restores the terminal.
func (p *linerPrompter) Close() {
	if p.history != "" {
		if f, err := os.Create(p.history); err == nil {
			_, _ = p.WriteHistory(f)
			_ = f.Close()
		}
	}

	_ = p.State.Close()
}

func historyFile(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".shmq_history")
}

// isTerminal reports whether r is a tty. liner always reads the process's
// stdin, so anything else goes through the line scanner.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok || f != os.Stdin {
		return false
	}

	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)

	return err == nil
}
