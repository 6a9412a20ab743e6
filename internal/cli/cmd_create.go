package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmcache/internal/config"
)

// CreateCmd returns the create command.
func CreateCmd(a *app) *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	slots := fs.IntP("slots", "n", 0, "Number of slots (default from config, else 1024)")
	size := fs.String("size", "", "Segment size, e.g. 64K or 16M (overrides --slots)")
	keySize := fs.Int("key-size", 0, "Maximum key length in bytes")
	payloadSize := fs.Int("payload-size", 0, "Maximum payload length in bytes")
	buckets := fs.Int("buckets", 0, "Hash bucket count (0 derives one per slot)")
	hash := fs.String("hash", "", "Hash algorithm: rolling or xxhash")
	verbose := fs.BoolP("verbose", "v", false, "Print the computed layout")
	timeout := fs.Duration("timeout", 0, "Give up if the segment lock is busy this long (0 waits, negative never waits)")

	return &Command{
		Flags: fs,
		Usage: "create [flags]",
		Short: "Create and initialize a segment",
		Long: `Create the segment file, size it and lay out an empty cache in it.

Fails if the segment already exists. Flags override the config file. When
neither --size nor size is configured, the segment is sized to hold exactly
--slots entries.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			cfg := a.cfg

			if fs.Changed("slots") {
				cfg.Slots = *slots
				// An explicit slot count wins over a configured size.
				cfg.Size = ""
			}

			if fs.Changed("size") {
				cfg.Size = *size
			}

			if fs.Changed("key-size") {
				cfg.KeySize = *keySize
			}

			if fs.Changed("payload-size") {
				cfg.PayloadSize = *payloadSize
			}

			if fs.Changed("buckets") {
				cfg.Buckets = *buckets
			}

			if fs.Changed("hash") {
				cfg.Hash = *hash
			}

			a.mgr.SetLockTimeout(*timeout)

			return execCreate(o, a, cfg, *verbose)
		},
	}
}

func execCreate(o *IO, a *app, cfg config.Config, verbose bool) error {
	opts, err := cfg.CacheOptions()
	if err != nil {
		return err
	}

	size, err := cfg.SegmentBytes()
	if err != nil {
		return err
	}

	path := cfg.SegmentPath()

	h, err := a.mgr.Create(path, size, opts)
	if err != nil {
		return err
	}

	defer func() { _ = h.Close() }()

	o.Printf("created %s (%d slots, %d bytes)\n", path, h.Capacity(), h.Segment().Size())

	if verbose {
		st := h.Stats()
		o.Printf("key_size=%d\n", st.KeySize)
		o.Printf("payload_size=%d\n", st.PayloadSize)
		o.Printf("slot_size=%d\n", st.SlotSize)
		o.Printf("buckets=%d\n", st.BucketCount)
		o.Printf("hash=%s\n", st.Hash)
		o.Printf("watermark_at=%d\n", st.Capacity-st.Capacity/8)
	}

	return nil
}

// DestroyCmd returns the destroy command.
func DestroyCmd(a *app) *Command {
	fs := flag.NewFlagSet("destroy", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0, "Give up if the segment lock is busy this long (0 waits, negative never waits)")

	return &Command{
		Flags: fs,
		Usage: "destroy [flags]",
		Short: "Remove the segment",
		Long: `Remove the segment file and its lock file.

Processes that still have the segment attached keep using their mapping
until they exit. A create or destroy in another process holds the lock;
--timeout bounds the wait for it.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			a.mgr.SetLockTimeout(*timeout)

			path := a.cfg.SegmentPath()

			err := a.mgr.Destroy(path)
			if err != nil {
				return err
			}

			o.Println("destroyed", path)

			return nil
		},
	}
}

// InfoCmd returns the info command.
func InfoCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("info", flag.ContinueOnError),
		Usage: "info",
		Short: "Show segment geometry and usage",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			st := h.Stats()

			if st.LockHolder != 0 {
				o.Warn(fmt.Sprintf("segment lock is held by pid %d", st.LockHolder),
					"if that process is gone, destroy and recreate the segment")
			}

			o.Println("segment=" + h.Segment().Path())
			o.Printf("segment_bytes=%d\n", st.SegmentSize)
			o.Printf("slots=%d\n", st.Capacity)
			o.Printf("in_use=%d\n", st.InUse)
			o.Printf("usage=%.2f%%\n", st.UsagePercent)
			o.Printf("watermark=%t\n", st.Watermark)
			o.Printf("buckets=%d\n", st.BucketCount)
			o.Printf("key_size=%d\n", st.KeySize)
			o.Printf("payload_size=%d\n", st.PayloadSize)
			o.Printf("slot_size=%d\n", st.SlotSize)
			o.Printf("hash=%s\n", st.Hash)
			o.Printf("lock_holder=%d\n", st.LockHolder)

			return nil
		},
	}
}

// SyncCmd returns the sync command.
func SyncCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("sync", flag.ContinueOnError),
		Usage: "sync",
		Short: "Flush the segment to its backing file",
		Long: `Write the mapped segment back to its file with msync.

Only useful when the segment lives on a disk-backed filesystem; on tmpfs
(the default /dev/shm) it is a no-op.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}

			h, err := a.attach()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			err = h.Segment().Sync()
			if err != nil {
				return err
			}

			o.Println("synced", h.Segment().Path())

			return nil
		},
	}
}
