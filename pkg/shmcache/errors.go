package shmcache

import "errors"

// Sentinel errors returned by shmcache operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, shmcache.ErrCapacityExhausted) {
//	    _, _ = c.GetOldest()
//	    // retry the store
//	}
var (
	// ErrLayoutTooSmall indicates the region cannot hold the header, the
	// bucket table and at least one slot.
	//
	// Nothing is written to the region. Recovery: create a larger region.
	ErrLayoutTooSmall = errors.New("shmcache: layout too small")

	// ErrPayloadTooLarge indicates a payload longer than the per-slot
	// payload capacity. No state is modified.
	ErrPayloadTooLarge = errors.New("shmcache: payload too large")

	// ErrKeyTooLarge indicates a key longer than the per-slot key capacity.
	// No state is modified.
	ErrKeyTooLarge = errors.New("shmcache: key too large")

	// ErrCapacityExhausted indicates every slot is in use and the store was
	// for a new key.
	//
	// Store never evicts on its own. Recovery: call [Cache.GetOldest] (or
	// [Cache.Delete]) and retry.
	ErrCapacityExhausted = errors.New("shmcache: capacity exhausted")

	// ErrKeyNotFound indicates the key is not present. No state is modified.
	ErrKeyNotFound = errors.New("shmcache: key not found")

	// ErrEmpty indicates [Cache.GetOldest] was called with no entries in use.
	ErrEmpty = errors.New("shmcache: empty")

	// ErrInvalidInput indicates invalid options or a region that cannot be
	// used (for example, not 8-byte aligned).
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("shmcache: invalid input")

	// ErrIncompatible indicates the region passed to [Attach] was not
	// created by [Create], or by an incompatible format version.
	ErrIncompatible = errors.New("shmcache: incompatible")

	// ErrCorrupt indicates the region passed to [Attach] carries a valid
	// magic but an inconsistent header (checksum or geometry mismatch).
	//
	// Recovery: destroy and recreate the region.
	ErrCorrupt = errors.New("shmcache: corrupt")
)
