// Package shm maps cache segments into memory and coordinates their
// lifecycle between processes.
//
// A segment is a regular file, normally under /dev/shm, mapped MAP_SHARED by
// every process that uses it. The bytes are interpreted by pkg/shmcache;
// this package only creates, maps, unmaps and removes them, and serializes
// create/attach/destroy through a sibling lock file.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

var (
	// ErrExists is returned by [Manager.Create] when the segment file already
	// exists.
	ErrExists = errors.New("segment already exists")

	// ErrNotExist is returned when the segment file does not exist.
	ErrNotExist = errors.New("segment does not exist")
)

const segmentPerm = 0o600

// DefaultDir returns the directory segments live in when a bare name is
// given: /dev/shm if present (tmpfs, never written back to disk), else the
// system temp dir.
func DefaultDir() string {
	info, err := os.Stat("/dev/shm")
	if err == nil && info.IsDir() {
		return "/dev/shm"
	}

	return os.TempDir()
}

// ResolvePath turns a segment name into a path. Names without a separator are
// placed in [DefaultDir].
func ResolvePath(name string) string {
	if filepath.Base(name) == name {
		return filepath.Join(DefaultDir(), name)
	}

	return name
}

// Segment is a mapped segment file.
type Segment struct {
	path string
	fd   int
	data []byte
}

// createSegment creates a new segment file of size bytes and maps it. Fails
// with [ErrExists] if path exists. The new file reads as zeros.
func createSegment(path string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("segment size must be > 0, got %d", size)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, segmentPerm)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("%s: %w", path, ErrExists)
		}

		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	err = unix.Ftruncate(fd, int64(size))
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)

		return nil, fmt.Errorf("truncate %s to %d: %w", path, size, err)
	}

	seg, err := mapSegment(path, fd, size)
	if err != nil {
		_ = unix.Unlink(path)

		return nil, err
	}

	return seg, nil
}

// openSegment maps an existing segment file in full.
func openSegment(path string) (*Segment, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
		}

		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var st unix.Stat_t

	err = unix.Fstat(fd, &st)
	if err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if st.Size <= 0 || st.Size > int64(^uint(0)>>1) {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("%s: unusable segment size %d", path, st.Size)
	}

	return mapSegment(path, fd, int(st.Size))
}

// mapSegment maps fd shared read-write. fd is closed on failure.
func mapSegment(path string, fd, size int) (*Segment, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &Segment{path: path, fd: fd, data: data}, nil
}

// Bytes returns the mapped region. It is page aligned and valid until Close.
func (s *Segment) Bytes() []byte { return s.data }

// Size returns the mapped size in bytes.
func (s *Segment) Size() int { return len(s.data) }

// Path returns the segment file path.
func (s *Segment) Path() string { return s.path }

// Sync flushes the mapping to the backing file. Only meaningful for segments
// outside tmpfs.
func (s *Segment) Sync() error {
	if s.data == nil {
		return nil
	}

	err := unix.Msync(s.data, unix.MS_SYNC)
	if err != nil {
		return fmt.Errorf("msync %s: %w", s.path, err)
	}

	return nil
}

// Close unmaps the segment and closes its descriptor. The file stays. Close
// is idempotent.
func (s *Segment) Close() error {
	var unmapErr, closeErr error

	if s.data != nil {
		unmapErr = unix.Munmap(s.data)
		s.data = nil
	}

	if s.fd >= 0 {
		closeErr = unix.Close(s.fd)
		s.fd = -1
	}

	if unmapErr != nil {
		unmapErr = fmt.Errorf("munmap %s: %w", s.path, unmapErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("close %s: %w", s.path, closeErr)
	}

	return errors.Join(unmapErr, closeErr)
}
