package shmcache

// Stats is a point-in-time usage summary.
type Stats struct {
	InUse        int     `json:"in_use"`
	Capacity     int     `json:"capacity"`
	UsagePercent float64 `json:"usage_percent"`
	Watermark    bool    `json:"watermark"`
	BucketCount  int     `json:"bucket_count"`
	KeySize      int     `json:"key_size"`
	PayloadSize  int     `json:"payload_size"`
	SlotSize     int     `json:"slot_size"`
	SegmentSize  int     `json:"segment_size"`
	Hash         string  `json:"hash"`
	LockHolder   int     `json:"lock_holder"`
}

// SlotInfo describes one in-use slot.
type SlotInfo struct {
	Index       int    `json:"index"`
	Key         string `json:"key"`
	HashIdx     int    `json:"hash_idx"`
	PayloadSize int    `json:"payload_size"`
}

// BucketInfo lists the slot indices chained on one non-empty bucket, head
// first.
type BucketInfo struct {
	Index int   `json:"index"`
	Slots []int `json:"slots"`
}

// Snapshot is a full dump of the segment's list structure, taken under one
// lock hold.
type Snapshot struct {
	Stats Stats `json:"stats"`

	// Free holds slot indices in free-list order (next pop first).
	Free []int `json:"free"`

	// LRU holds in-use slots from most to least recently used.
	LRU []SlotInfo `json:"lru"`

	Buckets []BucketInfo `json:"buckets"`
}

// Stats returns a usage summary. It takes the lock but modifies nothing.
func (c *Cache) Stats() Stats {
	c.lock.lock()
	stats := c.statsLocked()
	c.lock.unlock()

	// Read after unlock, otherwise it would report ourselves.
	stats.LockHolder = c.LockHolder()

	return stats
}

func (c *Cache) statsLocked() Stats {
	inUse := c.inUseLocked()

	return Stats{
		InUse:        int(inUse),
		Capacity:     int(c.slotCount),
		UsagePercent: float64(inUse) * 100 / float64(c.slotCount),
		Watermark:    inUse >= c.slotCount-c.slotCount/8,
		BucketCount:  int(c.bucketCount),
		KeySize:      int(c.keySize),
		PayloadSize:  int(c.payloadSize),
		SlotSize:     int(c.slotSize),
		SegmentSize:  len(c.seg),
		Hash:         c.hashAlg.String(),
	}
}

// Snapshot walks the free list, the LRU list and every bucket chain. It is
// O(slots + buckets) and holds the lock throughout; meant for tooling and
// tests, not the hot path.
func (c *Cache) Snapshot() Snapshot {
	c.lock.lock()
	defer c.lock.unlock()

	snap := Snapshot{
		Stats: c.statsLocked(),
		Free:  []int{},
		LRU:   []SlotInfo{},
	}

	for slot := range c.freeList().all() {
		snap.Free = append(snap.Free, int(c.slotIndex(slot)))
	}

	for slot := range c.lruList().all() {
		snap.LRU = append(snap.LRU, SlotInfo{
			Index:       int(c.slotIndex(slot)),
			Key:         string(c.slotKeyBytes(slot)),
			HashIdx:     int(c.slotHashIdx(slot)),
			PayloadSize: int(c.slotPayloadLen(slot)),
		})
	}

	snap.Buckets = []BucketInfo{}

	for idx := range c.bucketCount {
		chain := c.bucket(idx)
		if chain.empty() {
			continue
		}

		info := BucketInfo{Index: int(idx)}
		for slot := range chain.all() {
			info.Slots = append(info.Slots, int(c.slotIndex(slot)))
		}

		snap.Buckets = append(snap.Buckets, info)
	}

	return snap
}
