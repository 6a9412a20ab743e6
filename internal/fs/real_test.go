package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
)

// These tests cover the helpers Real adds on top of os: Exists and
// WriteFileAtomic. Plain passthroughs are not tested.

func TestReal_Exists_ReturnsFalseForNonExistent(t *testing.T) {
	t.Parallel()

	exists, err := NewReal().Exists(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Exists err=%v, want nil", err)
	}

	if exists {
		t.Fatal("Exists=true for missing file")
	}
}

func TestReal_Exists_ReturnsTrueForFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seg")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	exists, err := NewReal().Exists(path)
	if err != nil || !exists {
		t.Fatalf("Exists=(%v, %v), want (true, nil)", exists, err)
	}
}

func TestReal_WriteFileAtomic_CreatesFileWithPerm(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dump.json")

	if err := NewReal().WriteFileAtomic(path, []byte("hello"), 0o640); err != nil {
		t.Fatalf("WriteFileAtomic err=%v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile err=%v", err)
	}

	if got, want := string(data), "hello"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := info.Mode().Perm(), os.FileMode(0o640); got != want {
		t.Fatalf("perm=%v, want=%v", got, want)
	}
}

func TestReal_WriteFileAtomic_OverwritesExisting(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.txt")

	if err := fs.WriteFileAtomic(path, []byte("first, longer"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := fs.WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if got, want := string(data), "second"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}

	entries, _ := os.ReadDir(dir)
	if got, want := len(entries), 1; got != want {
		t.Fatalf("dir has %d entries, want %d (temp file left behind?)", got, want)
	}
}

func TestReal_WriteFileAtomic_ConcurrentWritesSafe(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	path := filepath.Join(t.TempDir(), "dump.txt")

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Go(func() {
			for range 20 {
				_ = fs.WriteFileAtomic(path, []byte("writer-"+string(rune('A'+i))+"-write"), 0o644)
			}
		})
	}

	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile err=%v", err)
	}

	if len(data) != len("writer-A-write") || string(data[:7]) != "writer-" {
		t.Fatalf("content corrupted: got %q", data)
	}
}

func TestFaulty_FailsConfiguredOpsUntilHealed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	faulty := NewFaulty(NewReal())
	faulty.Fail(OpReadFile, syscall.ENOENT)

	_, err := faulty.ReadFile(path)
	if !errors.Is(err, os.ErrNotExist) || !IsInjected(err) {
		t.Fatalf("ReadFile err=%v, want injected ErrNotExist", err)
	}

	// Other ops pass through.
	if exists, err := faulty.Exists(path); err != nil || !exists {
		t.Fatalf("Exists=(%v, %v), want (true, nil)", exists, err)
	}

	faulty.Heal(OpReadFile)

	data, err := faulty.ReadFile(path)
	if err != nil || string(data) != "{}" {
		t.Fatalf("ReadFile after heal=(%q, %v)", data, err)
	}

	if got, want := faulty.Calls(OpReadFile), 2; got != want {
		t.Fatalf("Calls(ReadFile)=%d, want %d", got, want)
	}

	if IsInjected(errors.New("real")) || IsInjected(nil) {
		t.Fatal("IsInjected true for non-injected error")
	}
}
