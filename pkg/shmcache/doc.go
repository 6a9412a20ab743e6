// Package shmcache provides a fixed-capacity LRU key/value cache that lives
// inside a single block of memory shared by multiple processes.
//
// Every structure inside the block (header, bucket table, slot pool, free
// list, LRU list, hash chains) references other structures by byte offset from
// the start of the block, never by address. Processes may map the block at
// different base addresses and still interpret the same bytes identically.
//
// # Basic Usage
//
//	region := ... // an already-mapped, zeroed []byte (see internal/shm)
//
//	c, err := shmcache.Create(region, shmcache.Options{
//	    KeySize:     64,
//	    PayloadSize: 512,
//	})
//	if err != nil {
//	    // ErrLayoutTooSmall: region cannot hold the header and bucket table
//	}
//
//	// In another process, after mapping the same block:
//	c, err := shmcache.Attach(region)
//
//	err = c.Store("user:42", payload)
//	buf, err = c.Fetch("user:42", buf)
//
// # Capacity
//
// The slot count is fixed when the block is created. Store never evicts:
// once every slot is in use, storing a new key returns [ErrCapacityExhausted].
// Callers poll [Cache.Watermark] and call [Cache.GetOldest] to make room.
//
// # Concurrency
//
// All operations on all handles (in any process) are serialized by one spin
// lock embedded in the block's header. Lookups take the same exclusive lock as
// mutations because they move the entry to the front of the LRU list.
//
// The lock busy-waits and cannot time out. A process that dies while holding
// it leaves every other attached process spinning forever; recovering from
// that is the caller's problem (typically: destroy and recreate the block).
package shmcache
