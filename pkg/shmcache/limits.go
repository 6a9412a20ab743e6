package shmcache

// Hardcoded implementation limits.
//
// They keep offset arithmetic away from overflow boundaries. Violations are
// configuration errors and return ErrInvalidInput.
const (
	// Maximum allowed key capacity (bytes).
	maxKeySizeBytes = 4096

	// Maximum allowed payload capacity (bytes) per slot.
	maxPayloadSizeBytes = 1 << 20 // 1 MiB

	// Maximum allowed total slot record size (bytes), links and padding included.
	maxSlotSizeBytes = 2 << 20 // 2 MiB

	// Maximum allowed number of hash buckets.
	maxBucketCount = 1 << 30

	// Maximum allowed region size (bytes).
	maxSegmentSizeBytes = uint64(1) << 40 // 1 TiB
)

// Defaults applied by [Options] for zero values.
const (
	DefaultKeySize     = 64
	DefaultPayloadSize = 1024
)
