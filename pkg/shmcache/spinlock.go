package shmcache

import (
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"
)

const (
	lockFree = 0

	// Spins between scheduler yields while the lock is contended.
	spinsPerYield = 64
)

// lockOwner is the value stored in a held lock word. Any non-zero value
// works; the pid makes the holder visible to diagnostics.
var lockOwner = uint32(os.Getpid())

// spinLock is a test-and-set lock whose word lives in the shared segment.
//
// It relies only on an atomic compare-and-swap on that word, so threads in
// unrelated processes that mapped the same memory exclude each other. There is
// no wait queue, no fairness and no timeout. Not reentrant.
type spinLock struct {
	word *uint32
}

// newSpinLock returns the lock embedded in seg's header. seg must be 8-byte
// aligned (see checkRegion).
func newSpinLock(seg []byte) spinLock {
	_ = seg[offLock+3]

	return spinLock{word: (*uint32)(unsafe.Pointer(&seg[offLock]))}
}

func (l spinLock) init() {
	atomic.StoreUint32(l.word, lockFree)
}

// lock busy-waits until the word transitions from free to held.
func (l spinLock) lock() {
	for spins := 1; !atomic.CompareAndSwapUint32(l.word, lockFree, lockOwner); spins++ {
		// Gosched only lets other goroutines of this process run; it never
		// parks on a kernel object.
		if spins%spinsPerYield == 0 {
			runtime.Gosched()
		}
	}
}

func (l spinLock) unlock() {
	if atomic.SwapUint32(l.word, lockFree) == lockFree {
		panic("shmcache: unlock of unlocked spin lock")
	}
}

// holder returns the pid stored by the current holder, or 0 if free.
func (l spinLock) holder() uint32 {
	return atomic.LoadUint32(l.word)
}
