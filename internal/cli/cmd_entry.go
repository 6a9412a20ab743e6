package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	flag "github.com/spf13/pflag"
)

// StoreCmd returns the store command.
func StoreCmd(a *app) *Command {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	file := fs.StringP("file", "f", "", "Read the payload from `path`")

	return &Command{
		Flags: fs,
		Usage: "store <key> [value|-] [flags]",
		Short: "Insert or replace an entry",
		Long: `Insert or replace an entry and mark it most recently used.

The payload is the value argument, the contents of --file, or stdin when
the value is "-" or omitted. Fails when every slot is in use; evict with
'shmq oldest' first.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errMissingKey
			}

			if len(args) > 2 {
				return fmt.Errorf("%w: %v", errTooManyArgs, args[2:])
			}

			key := args[0]

			var payload []byte

			switch {
			case *file != "" && len(args) == 2:
				return errValueAndFile
			case *file != "":
				path := *file
				if !filepath.IsAbs(path) {
					path = filepath.Join(a.cfg.WorkDir, path)
				}

				data, err := a.fs.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading payload: %w", err)
				}

				payload = data
			case len(args) == 2 && args[1] != "-":
				payload = []byte(args[1])
			default:
				data, err := readStdin(a.stdin)
				if err != nil {
					return err
				}

				payload = data
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			err = h.Store(key, payload)
			if err != nil {
				return err
			}

			o.Printf("stored %s (%d bytes)\n", key, len(payload))

			return nil
		},
	}
}

func readStdin(r io.Reader) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}

	return data, nil
}

// FetchCmd returns the fetch command.
func FetchCmd(a *app) *Command {
	return readCmd(a, "fetch", "Print a copy of an entry's payload, mark most recently used", true)
}

// PeekCmd returns the peek command.
func PeekCmd(a *app) *Command {
	return readCmd(a, "peek", "Print payload without copying, mark most recently used", false)
}

func readCmd(a *app, name, short string, copyOut bool) *Command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	raw := fs.BoolP("raw", "r", false, "Write the payload unchanged, without a trailing newline")

	return &Command{
		Flags: fs,
		Usage: name + " <key> [flags]",
		Short: short,
		Exec: func(_ context.Context, o *IO, args []string) error {
			key, err := keyArg(args)
			if err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			var payload []byte

			if copyOut {
				payload, err = h.Fetch(key, nil)
			} else {
				// The view aliases the mapping; it is written out before Close.
				payload, err = h.Peek(key)
			}

			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}

			_, err = o.Write(payload)
			if err != nil {
				return fmt.Errorf("writing payload: %w", err)
			}

			if !*raw {
				o.Println()
			}

			return nil
		},
	}
}

// DeleteCmd returns the delete command.
func DeleteCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage: "delete <key>",
		Short: "Remove an entry",
		Exec: func(_ context.Context, o *IO, args []string) error {
			key, err := keyArg(args)
			if err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			err = h.Delete(key)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}

			o.Println("deleted", key)

			return nil
		},
	}
}

// OldestCmd returns the oldest command.
func OldestCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("oldest", flag.ContinueOnError),
		Usage: "oldest",
		Short: "Evict the least recently used entry and print it",
		Long: `Remove the least recently used entry and print it as
"<key><TAB><payload>".`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			kv, err := h.GetOldest()
			if err != nil {
				return err
			}

			o.Printf("%s\t%s\n", kv.Key, kv.Payload)

			return nil
		},
	}
}

// WatermarkCmd returns the watermark command.
func WatermarkCmd(a *app) *Command {
	fs := flag.NewFlagSet("watermark", flag.ContinueOnError)
	quiet := fs.BoolP("quiet", "q", false, "Print nothing; exit 0 above the watermark, 2 below")

	return &Command{
		Flags: fs,
		Usage: "watermark [flags]",
		Short: "Report whether usage reached 7/8 of the slots",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			above := h.Watermark()

			if *quiet {
				if !above {
					return errBelowWatermark
				}

				return nil
			}

			o.Println(strconv.FormatBool(above))

			return nil
		},
	}
}

// InUseCmd returns the inuse command.
func InUseCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("inuse", flag.ContinueOnError),
		Usage: "inuse",
		Short: "Print the number of entries",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			o.Println(h.InUse())

			return nil
		},
	}
}
