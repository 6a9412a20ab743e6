package shmcache

import (
	"fmt"
	"unsafe"
)

// Export internal functions and variables for testing.
// This file is only compiled during tests.

// NewRegionForTesting returns a zeroed, 8-byte aligned region of size bytes.
func NewRegionForTesting(size int) []byte {
	words := make([]uint64, (size+7)/8)

	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
}

// SlotSizeForTesting returns the slot record size for the given capacities.
func SlotSizeForTesting(keySize, payloadSize int) int {
	size, err := computeSlotSize(uint32(keySize), uint32(payloadSize))
	if err != nil {
		panic(err)
	}

	return int(size)
}

// CheckInvariantsForTesting walks every list in the segment and reports the
// first structural violation found:
//   - every slot is on exactly one of the free list and the LRU list
//   - in_use equals the LRU length
//   - prev links mirror next links, and head.last is the real tail
//   - every LRU slot is chained on exactly the bucket its hashidx names,
//     which is hash(key) % bucket_count
//   - no bucket chains a slot that is not in use
//   - no key appears twice
func CheckInvariantsForTesting(c *Cache) error {
	c.lock.lock()
	defer c.lock.unlock()

	where := make(map[uint64]string, c.slotCount)

	for _, list := range []struct {
		name string
		l    rlist
	}{
		{"free", c.freeList()},
		{"lru", c.lruList()},
	} {
		err := checkLinks(list.name, list.l, c.slotCount)
		if err != nil {
			return err
		}

		for slot := range list.l.all() {
			if slot < c.slotsOffset || (slot-c.slotsOffset)%uint64(c.slotSize) != 0 || c.slotIndex(slot) >= c.slotCount {
				return fmt.Errorf("%s list holds non-slot offset %d", list.name, slot)
			}

			if prev, ok := where[slot]; ok {
				return fmt.Errorf("slot %d on both %s and %s", c.slotIndex(slot), prev, list.name)
			}

			where[slot] = list.name
		}
	}

	if uint64(len(where)) != c.slotCount {
		return fmt.Errorf("%d of %d slots are on a list", len(where), c.slotCount)
	}

	var lruLen uint64

	keys := make(map[string]uint64)

	for slot := range c.lruList().all() {
		lruLen++

		key := string(c.slotKeyBytes(slot))
		if other, dup := keys[key]; dup {
			return fmt.Errorf("key %q in slots %d and %d", key, c.slotIndex(other), c.slotIndex(slot))
		}

		keys[key] = slot

		idx := c.slotHashIdx(slot)
		if want := c.bucketIndex(key); idx != want {
			return fmt.Errorf("slot %d hashidx %d, want %d", c.slotIndex(slot), idx, want)
		}
	}

	if inUse := c.inUseLocked(); inUse != lruLen {
		return fmt.Errorf("in_use %d != lru length %d", inUse, lruLen)
	}

	var chained uint64

	for idx := range c.bucketCount {
		chain := c.bucket(idx)

		err := checkLinks(fmt.Sprintf("bucket %d", idx), chain, c.slotCount)
		if err != nil {
			return err
		}

		for slot := range chain.all() {
			chained++

			if where[slot] != "lru" {
				return fmt.Errorf("bucket %d chains slot %d which is %q", idx, c.slotIndex(slot), where[slot])
			}

			if c.slotHashIdx(slot) != idx {
				return fmt.Errorf("bucket %d chains slot %d with hashidx %d", idx, c.slotIndex(slot), c.slotHashIdx(slot))
			}
		}
	}

	if chained != lruLen {
		return fmt.Errorf("%d slots chained in buckets, %d in lru", chained, lruLen)
	}

	return nil
}

// checkLinks verifies the back links of l and bounds its length.
func checkLinks(name string, l rlist, limit uint64) error {
	var (
		prev uint64
		n    uint64
	)

	for elem := l.first(); elem != 0; elem = l.next(elem) {
		n++
		if n > limit {
			return fmt.Errorf("%s list longer than %d (cycle?)", name, limit)
		}

		if l.prev(elem) != prev {
			return fmt.Errorf("%s list: prev of %d is %d, want %d", name, elem, l.prev(elem), prev)
		}

		prev = elem
	}

	if l.last() != prev {
		return fmt.Errorf("%s list: last is %d, want %d", name, l.last(), prev)
	}

	return nil
}
