package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/shmcache/pkg/shmcache"
)

const dumpPerm = 0o644

// DumpCmd returns the dump command.
func DumpCmd(a *app) *Command {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print JSON instead of text")
	output := fs.StringP("output", "o", "", "Write to `file` (atomically) instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "dump [flags]",
		Short: "Print the free list, LRU order and bucket chains",
		Long: `Print usage, the free list in pop order, every entry from most to least
recently used, and every non-empty bucket chain.

The snapshot is taken under one lock hold, so it is consistent even while
other processes write.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			snap := h.Snapshot()

			err = h.Close()
			if err != nil {
				return err
			}

			var data []byte

			if *asJSON {
				data, err = formatSnapshotJSON(snap)
				if err != nil {
					return err
				}
			} else {
				data = formatSnapshotText(snap)
			}

			if *output == "" {
				_, err = o.Write(data)

				return err
			}

			path := *output
			if !filepath.IsAbs(path) {
				path = filepath.Join(a.cfg.WorkDir, path)
			}

			err = a.fs.MkdirAll(filepath.Dir(path), 0o755)
			if err != nil {
				return fmt.Errorf("writing dump: %w", err)
			}

			err = a.fs.WriteFileAtomic(path, data, dumpPerm)
			if err != nil {
				return fmt.Errorf("writing dump: %w", err)
			}

			o.Println("wrote", path)

			return nil
		},
	}
}

func formatSnapshotJSON(snap shmcache.Snapshot) ([]byte, error) {
	data, err := sonnet.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding dump: %w", err)
	}

	pretty, err := hujson.Format(data)
	if err != nil {
		return nil, fmt.Errorf("formatting dump: %w", err)
	}

	if !bytes.HasSuffix(pretty, []byte("\n")) {
		pretty = append(pretty, '\n')
	}

	return pretty, nil
}

func formatSnapshotText(snap shmcache.Snapshot) []byte {
	var b strings.Builder

	st := snap.Stats
	fmt.Fprintf(&b, "usage: %d/%d (%.2f%%)", st.InUse, st.Capacity, st.UsagePercent)

	if st.Watermark {
		b.WriteString(" watermark")
	}

	b.WriteString("\n")

	fmt.Fprintf(&b, "free (%d):", len(snap.Free))

	for _, idx := range snap.Free {
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(idx))
	}

	b.WriteString("\n")

	fmt.Fprintf(&b, "lru (%d, newest first):\n", len(snap.LRU))

	for _, s := range snap.LRU {
		fmt.Fprintf(&b, "  slot=%d bucket=%d key=%q payload=%d\n", s.Index, s.HashIdx, s.Key, s.PayloadSize)
	}

	fmt.Fprintf(&b, "buckets (%d non-empty of %d):\n", len(snap.Buckets), st.BucketCount)

	for _, bk := range snap.Buckets {
		fmt.Fprintf(&b, "  %d:", bk.Index)

		for _, idx := range bk.Slots {
			b.WriteString(" ")
			b.WriteString(strconv.Itoa(idx))
		}

		b.WriteString("\n")
	}

	return []byte(b.String())
}
