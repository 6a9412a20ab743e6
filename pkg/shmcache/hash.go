package shmcache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashFunc maps a key to a 32-bit hash. The bucket is hash % bucket_count.
//
// It needs no cryptographic property; it must be deterministic and identical
// in every process attached to the same segment.
type HashFunc func(key string) uint32

// HashAlgorithm identifies a built-in [HashFunc]. It is recorded in the
// segment header at [Create] so [Attach] selects the same function.
type HashAlgorithm uint32

const (
	// HashRolling is [RollingHash].
	HashRolling HashAlgorithm = 1

	// HashXX is [XXHash].
	HashXX HashAlgorithm = 2
)

// Func returns the hash function for a, or false if a is unknown.
func (a HashAlgorithm) Func() (HashFunc, bool) {
	switch a {
	case HashRolling:
		return RollingHash, true
	case HashXX:
		return XXHash, true
	default:
		return nil, false
	}
}

func (a HashAlgorithm) String() string {
	switch a {
	case HashRolling:
		return "rolling"
	case HashXX:
		return "xxhash"
	default:
		return fmt.Sprintf("HashAlgorithm(%d)", uint32(a))
	}
}

// ParseHashAlgorithm parses the names returned by [HashAlgorithm.String].
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rolling":
		return HashRolling, nil
	case "xxhash", "xx":
		return HashXX, nil
	default:
		return 0, fmt.Errorf("unknown hash algorithm %q (want rolling or xxhash): %w", name, ErrInvalidInput)
	}
}

// RollingHash is the default string hash: hash = hash*31 + b over all key
// bytes, wrapping at 32 bits.
func RollingHash(key string) uint32 {
	var hash uint32

	for i := 0; i < len(key); i++ {
		hash = hash*31 + uint32(key[i])
	}

	return hash
}

// XXHash folds the 64-bit xxHash of key to 32 bits.
func XXHash(key string) uint32 {
	sum := xxhash.Sum64String(key)

	return uint32(sum) ^ uint32(sum>>32)
}

// bucketIndex returns the bucket key belongs to under the handle's hash.
func (c *Cache) bucketIndex(key string) uint64 {
	return uint64(c.hash(key)) % c.bucketCount
}

// bucket returns the chain for bucket idx.
func (c *Cache) bucket(idx uint64) rlist {
	return rlist{seg: c.seg, head: c.bucketsOffset + idx*bucketEntrySize, field: slotOffHash}
}

// lookupLocked walks bucket idx for key. First match wins.
func (c *Cache) lookupLocked(key string, idx uint64) (uint64, bool) {
	for slot := range c.bucket(idx).all() {
		if c.slotKeyEquals(slot, key) {
			return slot, true
		}
	}

	return 0, false
}
