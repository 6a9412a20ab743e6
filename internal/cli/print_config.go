package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmcache/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			return execPrintConfig(io, a)
		},
	}
}

func execPrintConfig(io *IO, a *app) error {
	cfg := a.cfg

	io.Println("segment=" + cfg.SegmentPath())

	if cfg.Size != "" {
		io.Println("size=" + cfg.Size)
	} else {
		size, err := cfg.SegmentBytes()
		if err != nil {
			return err
		}

		slots := cfg.Slots
		if slots == 0 {
			slots = config.DefaultSlots
		}

		io.Printf("slots=%d\n", slots)
		io.Printf("size=%d\n", size)
	}

	io.Printf("key_size=%d\n", cfg.KeySize)
	io.Printf("payload_size=%d\n", cfg.PayloadSize)

	if cfg.Buckets != 0 {
		io.Printf("buckets=%d\n", cfg.Buckets)
	}

	io.Println("hash=" + cfg.Hash)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
