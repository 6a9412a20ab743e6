package shmcache

import (
	"fmt"
	"unsafe"
)

// Options configure [Create].
//
// Zero values select defaults. The resulting geometry is recorded in the
// segment header; [Attach] takes no options.
type Options struct {
	// KeySize is the maximum key length in bytes.
	//
	// Default [DefaultKeySize]. Longer keys are rejected with [ErrKeyTooLarge].
	KeySize int

	// PayloadSize is the maximum payload length in bytes.
	//
	// Default [DefaultPayloadSize]. Longer payloads are rejected with
	// [ErrPayloadTooLarge].
	PayloadSize int

	// BucketCount is the number of hash buckets.
	//
	// 0 derives it from the region size so that there is roughly one bucket
	// per slot.
	BucketCount int

	// Hash selects the built-in hash function recorded in the header.
	//
	// Default [HashRolling]. A custom function can still be installed per
	// handle with [Cache.SetHashFunc].
	Hash HashAlgorithm
}

// withDefaults fills zero values and validates the result.
func (opts Options) withDefaults() (Options, error) {
	if opts.KeySize == 0 {
		opts.KeySize = DefaultKeySize
	}

	if opts.PayloadSize == 0 {
		opts.PayloadSize = DefaultPayloadSize
	}

	if opts.Hash == 0 {
		opts.Hash = HashRolling
	}

	if opts.KeySize < 0 || opts.KeySize > maxKeySizeBytes {
		return Options{}, fmt.Errorf("key_size %d out of range [1, %d]: %w", opts.KeySize, maxKeySizeBytes, ErrInvalidInput)
	}

	if opts.PayloadSize < 0 || opts.PayloadSize > maxPayloadSizeBytes {
		return Options{}, fmt.Errorf("payload_size %d out of range [1, %d]: %w", opts.PayloadSize, maxPayloadSizeBytes, ErrInvalidInput)
	}

	if opts.BucketCount < 0 || opts.BucketCount > maxBucketCount {
		return Options{}, fmt.Errorf("bucket_count %d out of range [0, %d]: %w", opts.BucketCount, maxBucketCount, ErrInvalidInput)
	}

	if _, ok := opts.Hash.Func(); !ok {
		return Options{}, fmt.Errorf("unknown hash algorithm %d: %w", opts.Hash, ErrInvalidInput)
	}

	return opts, nil
}

// layout is the partition of a region into header, bucket table and slot pool.
type layout struct {
	memSize       uint64
	slotSize      uint32
	slotCount     uint64
	bucketCount   uint64
	bucketsOffset uint64
	slotsOffset   uint64
}

// computeLayout partitions size bytes for the given (already defaulted)
// options:
//
//	[header][bucket table: bucket_count × 16][padding to 64][slot pool]
//
// Returns ErrLayoutTooSmall if the slot pool would start past the end of the
// region or not a single slot fits.
func computeLayout(size uint64, opts Options) (layout, error) {
	slotSize, err := computeSlotSize(uint32(opts.KeySize), uint32(opts.PayloadSize))
	if err != nil {
		return layout{}, err
	}

	if size > maxSegmentSizeBytes {
		return layout{}, fmt.Errorf("region size %d exceeds max %d: %w", size, maxSegmentSizeBytes, ErrInvalidInput)
	}

	if size < shq1HeaderSize {
		return layout{}, fmt.Errorf("region size %d < header size %d: %w", size, shq1HeaderSize, ErrLayoutTooSmall)
	}

	bucketCount := uint64(opts.BucketCount)
	if bucketCount == 0 {
		bucketCount = max((size-shq1HeaderSize)/(uint64(slotSize)+bucketEntrySize), 1)
		bucketCount = min(bucketCount, maxBucketCount)
	}

	bucketsOffset := uint64(shq1HeaderSize)
	slotsOffset := alignUp(bucketsOffset+bucketCount*bucketEntrySize, slotAlign)

	if slotsOffset > size {
		return layout{}, fmt.Errorf("bucket table for %d buckets ends at %d, past region size %d: %w",
			bucketCount, slotsOffset, size, ErrLayoutTooSmall)
	}

	slotCount := (size - slotsOffset) / uint64(slotSize)
	if slotCount == 0 {
		return layout{}, fmt.Errorf("no room for a %d-byte slot after offset %d in %d bytes: %w",
			slotSize, slotsOffset, size, ErrLayoutTooSmall)
	}

	return layout{
		memSize:       size,
		slotSize:      slotSize,
		slotCount:     slotCount,
		bucketCount:   bucketCount,
		bucketsOffset: bucketsOffset,
		slotsOffset:   slotsOffset,
	}, nil
}

// SegmentSize returns the region size for which [Create] with the same
// options lays out exactly slots slots. With opts.BucketCount == 0 the size
// assumes one bucket per slot, which is also what Create derives from it.
//
// Used by the shared-memory collaborator to size a new region.
func SegmentSize(opts Options, slots int) (int, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return 0, err
	}

	if slots < 1 {
		return 0, fmt.Errorf("slots must be >= 1, got %d: %w", slots, ErrInvalidInput)
	}

	slotSize, err := computeSlotSize(uint32(opts.KeySize), uint32(opts.PayloadSize))
	if err != nil {
		return 0, err
	}

	bucketCount := uint64(opts.BucketCount)
	if bucketCount == 0 {
		bucketCount = uint64(slots)
	}

	size := alignUp(shq1HeaderSize+bucketCount*bucketEntrySize, slotAlign) + uint64(slots)*uint64(slotSize)
	if size > maxSegmentSizeBytes {
		return 0, fmt.Errorf("segment size %d exceeds max %d: %w", size, maxSegmentSizeBytes, ErrInvalidInput)
	}

	return int(size), nil
}

// initSegment writes a fresh layout into seg: header, empty list heads,
// every slot tail-appended to the free list in index order, in-use zero,
// lock released.
func initSegment(seg []byte, lay layout, opts Options) {
	writeHeader(seg, &shq1Header{
		Version:       shq1Version,
		HeaderSize:    shq1HeaderSize,
		SlotSize:      lay.slotSize,
		KeySize:       uint32(opts.KeySize),
		PayloadSize:   uint32(opts.PayloadSize),
		HashAlg:       uint32(opts.Hash),
		MemSize:       lay.memSize,
		SlotCount:     lay.slotCount,
		BucketCount:   lay.bucketCount,
		InUse:         0,
		SlotsOffset:   lay.slotsOffset,
		BucketsOffset: lay.bucketsOffset,
	})

	newSpinLock(seg).init()

	rlist{seg: seg, head: offFreeList, field: slotOffList}.init()
	rlist{seg: seg, head: offLRUList, field: slotOffList}.init()

	for i := range lay.bucketCount {
		rlist{seg: seg, head: lay.bucketsOffset + i*bucketEntrySize, field: slotOffHash}.init()
	}

	free := rlist{seg: seg, head: offFreeList, field: slotOffList}

	for i := range lay.slotCount {
		slot := lay.slotsOffset + i*uint64(lay.slotSize)
		clear(seg[slot : slot+slotOffKey])
		free.insertTail(slot)
	}
}

// checkRegion rejects regions the engine cannot address safely.
func checkRegion(region []byte) error {
	if len(region) == 0 {
		return fmt.Errorf("empty region: %w", ErrLayoutTooSmall)
	}

	// Lock word and 64-bit fields are accessed in place.
	if uintptr(unsafe.Pointer(&region[0]))%8 != 0 {
		return fmt.Errorf("region is not 8-byte aligned: %w", ErrInvalidInput)
	}

	return nil
}
