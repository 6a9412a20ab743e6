package shmcache

import (
	"bytes"
	"fmt"
)

// Cache is a handle to a cache laid out in a shared memory region.
//
// Every operation takes the segment's spin lock for its whole duration, so a
// Cache is safe for concurrent use by goroutines and by other processes that
// attached the same region. Reads and writes are serialized alike: a hit
// moves the entry to the LRU head, so there is no read-only path.
//
// The handle does not own the region. Unmapping it while the handle is in
// use is undefined.
//
// A Cache must be obtained via [Create] or [Attach]; the zero value is not
// usable.
type Cache struct {
	_ [0]func() // prevent external construction

	seg  []byte
	lock spinLock
	hash HashFunc

	// Cached immutable config from header.
	keySize       uint32
	payloadSize   uint32
	slotSize      uint32
	slotCount     uint64
	bucketCount   uint64
	slotsOffset   uint64
	bucketsOffset uint64
	hashAlg       HashAlgorithm
}

// KeyValue is an entry returned by [Cache.GetOldest]. Payload is a copy.
type KeyValue struct {
	Key     string
	Payload []byte
}

// Create lays out a fresh cache over region and returns a handle to it.
//
// Any previous content is overwritten. Other processes must not use the
// region until Create returns; the caller is responsible for that ordering
// (see internal/shm for a file-lock based handshake).
//
// Possible errors: [ErrLayoutTooSmall], [ErrInvalidInput].
func Create(region []byte, opts Options) (*Cache, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	err = checkRegion(region)
	if err != nil {
		return nil, err
	}

	lay, err := computeLayout(uint64(len(region)), opts)
	if err != nil {
		return nil, err
	}

	initSegment(region, lay, opts)

	hash, _ := opts.Hash.Func()

	return &Cache{
		seg:           region[:lay.memSize],
		lock:          newSpinLock(region),
		hash:          hash,
		keySize:       uint32(opts.KeySize),
		payloadSize:   uint32(opts.PayloadSize),
		slotSize:      lay.slotSize,
		slotCount:     lay.slotCount,
		bucketCount:   lay.bucketCount,
		slotsOffset:   lay.slotsOffset,
		bucketsOffset: lay.bucketsOffset,
		hashAlg:       opts.Hash,
	}, nil
}

// Attach returns a handle to a cache previously laid out by [Create],
// possibly in another process and at another address.
//
// Only the immutable header fields are read; the lock is not taken.
//
// Possible errors:
//   - [ErrIncompatible]: not a cache region, or an unsupported format
//   - [ErrCorrupt]: checksum mismatch or inconsistent geometry
//   - [ErrInvalidInput]: region not 8-byte aligned
func Attach(region []byte) (*Cache, error) {
	if len(region) < shq1HeaderSize {
		return nil, fmt.Errorf("region size %d is less than header size %d: %w", len(region), shq1HeaderSize, ErrIncompatible)
	}

	err := checkRegion(region)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(region[offMagic:offMagic+4], shq1Magic[:]) {
		return nil, fmt.Errorf("invalid magic %q, expected SHQ1: %w", region[offMagic:offMagic+4], ErrIncompatible)
	}

	hdr := readHeader(region)

	if hdr.Version != shq1Version {
		return nil, fmt.Errorf("unsupported version %d, expected %d: %w", hdr.Version, shq1Version, ErrIncompatible)
	}

	if hdr.HeaderSize != shq1HeaderSize {
		return nil, fmt.Errorf("unsupported header_size %d, expected %d: %w", hdr.HeaderSize, shq1HeaderSize, ErrIncompatible)
	}

	if !validateHeaderCRC(region) {
		return nil, fmt.Errorf("header CRC mismatch: %w", ErrCorrupt)
	}

	alg := HashAlgorithm(hdr.HashAlg)

	hash, ok := alg.Func()
	if !ok {
		return nil, fmt.Errorf("unknown hash_alg %d: %w", hdr.HashAlg, ErrIncompatible)
	}

	err = validateGeometry(hdr, uint64(len(region)))
	if err != nil {
		return nil, err
	}

	return &Cache{
		seg:           region[:hdr.MemSize],
		lock:          newSpinLock(region),
		hash:          hash,
		keySize:       hdr.KeySize,
		payloadSize:   hdr.PayloadSize,
		slotSize:      hdr.SlotSize,
		slotCount:     hdr.SlotCount,
		bucketCount:   hdr.BucketCount,
		slotsOffset:   hdr.SlotsOffset,
		bucketsOffset: hdr.BucketsOffset,
		hashAlg:       alg,
	}, nil
}

// validateGeometry checks that the recorded layout is one Create could have
// produced and that it fits in a region of regionSize bytes.
func validateGeometry(hdr shq1Header, regionSize uint64) error {
	if hdr.KeySize > maxKeySizeBytes || hdr.PayloadSize > maxPayloadSizeBytes {
		return fmt.Errorf("key_size %d / payload_size %d out of range: %w", hdr.KeySize, hdr.PayloadSize, ErrCorrupt)
	}

	slotSize, err := computeSlotSize(hdr.KeySize, hdr.PayloadSize)
	if err != nil || slotSize != hdr.SlotSize {
		return fmt.Errorf("slot_size %d does not match key_size %d and payload_size %d: %w",
			hdr.SlotSize, hdr.KeySize, hdr.PayloadSize, ErrCorrupt)
	}

	if hdr.BucketCount == 0 || hdr.BucketCount > maxBucketCount {
		return fmt.Errorf("bucket_count %d out of range: %w", hdr.BucketCount, ErrCorrupt)
	}

	if hdr.BucketsOffset != shq1HeaderSize {
		return fmt.Errorf("buckets_offset %d != header_size %d: %w", hdr.BucketsOffset, shq1HeaderSize, ErrCorrupt)
	}

	expectedSlotsOffset := alignUp(hdr.BucketsOffset+hdr.BucketCount*bucketEntrySize, slotAlign)
	if hdr.SlotsOffset != expectedSlotsOffset {
		return fmt.Errorf("slots_offset %d != expected %d: %w", hdr.SlotsOffset, expectedSlotsOffset, ErrCorrupt)
	}

	if hdr.MemSize > regionSize {
		return fmt.Errorf("recorded size %d exceeds region size %d: %w", hdr.MemSize, regionSize, ErrCorrupt)
	}

	if hdr.SlotsOffset >= hdr.MemSize {
		return fmt.Errorf("slots_offset %d past recorded size %d: %w", hdr.SlotsOffset, hdr.MemSize, ErrCorrupt)
	}

	if hdr.SlotCount == 0 || hdr.SlotCount > (hdr.MemSize-hdr.SlotsOffset)/uint64(hdr.SlotSize) {
		return fmt.Errorf("slot_count %d does not fit in %d bytes: %w", hdr.SlotCount, hdr.MemSize, ErrCorrupt)
	}

	if hdr.InUse > hdr.SlotCount {
		return fmt.Errorf("in_use %d > slot_count %d: %w", hdr.InUse, hdr.SlotCount, ErrCorrupt)
	}

	return nil
}

// SetHashFunc replaces the hash function used by this handle. Nothing is
// rehashed: every handle on the segment must use the same function, and it
// must be set before the first operation.
func (c *Cache) SetHashFunc(fn HashFunc) {
	c.hash = fn
}

// Store inserts or overwrites key.
//
// An existing key is overwritten in place and moved to the LRU head. A new
// key takes a free slot; Store never evicts, so a full cache returns
// [ErrCapacityExhausted] and the caller decides what to drop.
//
// Possible errors: [ErrKeyTooLarge], [ErrPayloadTooLarge],
// [ErrCapacityExhausted].
func (c *Cache) Store(key string, payload []byte) error {
	if len(key) > int(c.keySize) {
		return fmt.Errorf("key length %d > key_size %d: %w", len(key), c.keySize, ErrKeyTooLarge)
	}

	if len(payload) > int(c.payloadSize) {
		return fmt.Errorf("payload length %d > payload_size %d: %w", len(payload), c.payloadSize, ErrPayloadTooLarge)
	}

	idx := c.bucketIndex(key)

	c.lock.lock()
	defer c.lock.unlock()

	slot, ok := c.lookupLocked(key, idx)
	if ok {
		c.writePayload(slot, payload)
		c.touchLocked(slot)

		return nil
	}

	slot, ok = c.popFreeLocked()
	if !ok {
		return ErrCapacityExhausted
	}

	c.writeKey(slot, key)
	c.writePayload(slot, payload)
	c.linkLocked(slot, idx)

	return nil
}

// Fetch appends a copy of key's payload to dst[:0] and moves the entry to
// the LRU head.
//
// Possible errors: [ErrKeyNotFound].
func (c *Cache) Fetch(key string, dst []byte) ([]byte, error) {
	idx := c.bucketIndex(key)

	c.lock.lock()
	defer c.lock.unlock()

	slot, ok := c.lookupLocked(key, idx)
	if !ok {
		return dst[:0], ErrKeyNotFound
	}

	c.touchLocked(slot)

	return append(dst[:0], c.slotPayload(slot)...), nil
}

// Peek returns key's payload without copying and moves the entry to the LRU
// head.
//
// The result aliases shared memory. It is only stable while no other
// goroutine or process modifies the entry; use [Cache.Fetch] otherwise.
//
// Possible errors: [ErrKeyNotFound].
func (c *Cache) Peek(key string) ([]byte, error) {
	idx := c.bucketIndex(key)

	c.lock.lock()
	defer c.lock.unlock()

	slot, ok := c.lookupLocked(key, idx)
	if !ok {
		return nil, ErrKeyNotFound
	}

	c.touchLocked(slot)

	return c.slotPayload(slot), nil
}

// Delete removes key and returns its slot to the free list.
//
// Possible errors: [ErrKeyNotFound].
func (c *Cache) Delete(key string) error {
	idx := c.bucketIndex(key)

	c.lock.lock()
	defer c.lock.unlock()

	slot, ok := c.lookupLocked(key, idx)
	if !ok {
		return ErrKeyNotFound
	}

	c.unlinkLocked(slot)
	c.pushFreeLocked(slot)

	return nil
}

// GetOldest removes the least recently used entry and returns it.
//
// Possible errors: [ErrEmpty].
func (c *Cache) GetOldest() (KeyValue, error) {
	c.lock.lock()
	defer c.lock.unlock()

	slot := c.lruList().last()
	if slot == 0 {
		return KeyValue{}, ErrEmpty
	}

	c.unlinkLocked(slot)

	kv := KeyValue{
		Key:     string(c.slotKeyBytes(slot)),
		Payload: bytes.Clone(c.slotPayload(slot)),
	}

	c.pushFreeLocked(slot)

	return kv, nil
}

// Watermark reports whether the cache is at least seven eighths full. It
// is the signal to start evicting with [Cache.GetOldest] before stores fail.
func (c *Cache) Watermark() bool {
	c.lock.lock()
	defer c.lock.unlock()

	return c.inUseLocked() >= c.slotCount-c.slotCount/8
}

// InUse returns the number of slots holding an entry.
func (c *Cache) InUse() int {
	c.lock.lock()
	defer c.lock.unlock()

	return int(c.inUseLocked())
}

// Capacity returns the total number of slots.
func (c *Cache) Capacity() int { return int(c.slotCount) }

// KeyCapacity returns the maximum key length in bytes.
func (c *Cache) KeyCapacity() int { return int(c.keySize) }

// PayloadCapacity returns the maximum payload length in bytes.
func (c *Cache) PayloadCapacity() int { return int(c.payloadSize) }

// BucketCount returns the number of hash buckets.
func (c *Cache) BucketCount() int { return int(c.bucketCount) }

// HashAlgorithm returns the algorithm recorded in the header. It does not
// reflect [Cache.SetHashFunc].
func (c *Cache) HashAlgorithm() HashAlgorithm { return c.hashAlg }

// LockHolder returns the pid stored in the lock word, or 0 if the lock is
// free. A non-zero value that persists after the holder exited means the
// segment is wedged and must be recreated.
func (c *Cache) LockHolder() int { return int(c.lock.holder()) }
