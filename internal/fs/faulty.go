package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"sync"
	"syscall"
)

// Op names an [FS] method for [Faulty].
type Op string

// Operations [Faulty] can fail.
const (
	OpOpenFile        Op = "openfile"
	OpReadFile        Op = "readfile"
	OpWriteFileAtomic Op = "writefileatomic"
	OpMkdirAll        Op = "mkdirall"
	OpStat            Op = "stat"
	OpExists          Op = "exists"
	OpRemove          Op = "remove"
)

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

func (e *InjectedError) Error() string { return e.Err.Error() }

func (e *InjectedError) Unwrap() error { return e.Err }

// IsInjected reports whether err (or any wrapped error) was injected by
// [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails configured operations.
//
// Failures are returned as *[iofs.PathError] wrapped in [InjectedError], so
// errors.Is(err, iofs.ErrPermission) and friends keep working on them.
// Unconfigured operations pass through. Safe for concurrent use.
type Faulty struct {
	inner FS

	mu    sync.Mutex
	fails map[Op]error
	calls map[Op]int
}

// NewFaulty returns a [Faulty] over inner with no failures configured.
func NewFaulty(inner FS) *Faulty {
	return &Faulty{
		inner: inner,
		fails: make(map[Op]error),
		calls: make(map[Op]int),
	}
}

// Fail makes every following call of op fail with errno (EIO if nil).
func (f *Faulty) Fail(op Op, errno error) {
	if errno == nil {
		errno = syscall.EIO
	}

	f.mu.Lock()
	f.fails[op] = errno
	f.mu.Unlock()
}

// Heal removes the failure configured for op.
func (f *Faulty) Heal(op Op) {
	f.mu.Lock()
	delete(f.fails, op)
	f.mu.Unlock()
}

// Calls returns how often op was invoked, failed or not.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	errno, ok := f.fails[op]
	if !ok {
		return nil
	}

	return &InjectedError{Err: &iofs.PathError{Op: string(op), Path: path, Err: errno}}
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.inner.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.inner.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteFileAtomic, path); err != nil {
		return err
	}

	return f.inner.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.inner.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.inner.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpExists, path); err != nil {
		return false, err
	}

	return f.inner.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.inner.Remove(path)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
