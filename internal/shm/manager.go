package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/calvinalkan/shmcache/internal/fs"
	"github.com/calvinalkan/shmcache/pkg/shmcache"
)

// Manager creates, attaches and destroys cache segments.
//
// Every lifecycle step holds the segment's lock file (see [fs.LockPath]):
// exclusive for create and destroy, shared for attach. An attacher therefore
// never maps a segment whose header is still being written, and a destroy
// waits for in-flight attaches. The lock is released once the call returns;
// cache operations themselves only use the spin lock inside the segment.
type Manager struct {
	fs     fs.FS
	locker *fs.Locker

	lockTimeout time.Duration
}

// NewManager returns a Manager using fsys for lock files and removal.
func NewManager(fsys fs.FS) *Manager {
	return &Manager{fs: fsys, locker: fs.NewLocker(fsys)}
}

// SetLockTimeout bounds how long Create and Destroy wait for the exclusive
// lock. Zero waits forever and a negative value fails at once if the lock is
// held. Attach always waits.
func (m *Manager) SetLockTimeout(d time.Duration) {
	m.lockTimeout = d
}

func (m *Manager) lockExclusive(path string) (*fs.Lock, error) {
	switch {
	case m.lockTimeout < 0:
		return m.locker.TryLock(path)
	case m.lockTimeout > 0:
		return m.locker.LockWithTimeout(path, m.lockTimeout)
	default:
		return m.locker.Lock(path)
	}
}

// Handle is an attached cache together with the mapping that backs it.
type Handle struct {
	*shmcache.Cache

	seg *Segment
}

// Segment returns the underlying mapping.
func (h *Handle) Segment() *Segment { return h.seg }

// Close unmaps the segment. The cache must not be used afterwards; the
// segment file and its contents stay for other processes.
func (h *Handle) Close() error {
	return h.seg.Close()
}

// Create creates the segment file at path with size bytes, lays out a cache
// in it and returns a handle.
//
// If the engine rejects the geometry the new file is removed again, so a
// failed create leaves nothing behind.
//
// Possible errors: [ErrExists], [shmcache.ErrLayoutTooSmall],
// [shmcache.ErrInvalidInput], [fs.ErrWouldBlock] with a lock timeout set.
func (m *Manager) Create(path string, size int, opts shmcache.Options) (*Handle, error) {
	lock, err := m.lockExclusive(fs.LockPath(path))
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	defer func() { _ = lock.Close() }()

	seg, err := createSegment(path, size)
	if err != nil {
		return nil, err
	}

	cache, err := shmcache.Create(seg.Bytes(), opts)
	if err != nil {
		closeErr := seg.Close()
		removeErr := m.fs.Remove(path)

		return nil, errors.Join(err, closeErr, removeErr)
	}

	return &Handle{Cache: cache, seg: seg}, nil
}

// Attach maps the existing segment at path and validates its header.
//
// Possible errors: [ErrNotExist], [shmcache.ErrIncompatible],
// [shmcache.ErrCorrupt].
func (m *Manager) Attach(path string) (*Handle, error) {
	// Checked up front so attaching a missing segment leaves no lock file.
	exists, err := m.fs.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	}

	lockPath := fs.LockPath(path)

	lock, err := m.locker.RLock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	defer func() { _ = lock.Close() }()

	seg, err := openSegment(path)
	if err != nil {
		// A destroy slipped in after the check; drop the lock file RLock
		// just recreated.
		if errors.Is(err, ErrNotExist) {
			_ = m.fs.Remove(lockPath)
		}

		return nil, err
	}

	cache, err := shmcache.Attach(seg.Bytes())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%s: %w", path, err), seg.Close())
	}

	return &Handle{Cache: cache, seg: seg}, nil
}

// Destroy removes the segment file and its lock file. Processes that still
// have it mapped keep their mapping until they close it.
//
// Possible errors: [ErrNotExist], [fs.ErrWouldBlock] with a lock timeout set.
func (m *Manager) Destroy(path string) error {
	lockPath := fs.LockPath(path)

	lock, err := m.lockExclusive(lockPath)
	if err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}

	defer func() { _ = lock.Close() }()

	exists, err := m.fs.Exists(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if !exists {
		_ = m.fs.Remove(lockPath)

		return fmt.Errorf("%s: %w", path, ErrNotExist)
	}

	err = m.fs.Remove(path)
	if err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	// Waiters holding the old lock inode notice the unlink and retry.
	err = m.fs.Remove(lockPath)
	if err != nil {
		return fmt.Errorf("removing %s: %w", lockPath, err)
	}

	return nil
}
