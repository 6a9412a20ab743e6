package shmcache

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// SHQ1 segment format constants.
const (
	// Segment format version.
	shq1Version = 1

	// Fixed header size in bytes.
	shq1HeaderSize = 128

	// Size of one bucket table entry (an rlist head: first + last).
	bucketEntrySize = rlistHeadSize

	// Alignment of the slot pool start.
	slotAlign = 64
)

var shq1Magic = [4]byte{'S', 'H', 'Q', '1'}

// Header field offsets (bytes from segment start).
const (
	offMagic         = 0x000 // [4]byte
	offVersion       = 0x004 // uint32
	offHeaderSize    = 0x008 // uint32
	offSlotSize      = 0x00C // uint32
	offKeySize       = 0x010 // uint32
	offPayloadSize   = 0x014 // uint32
	offHashAlg       = 0x018 // uint32
	offLock          = 0x01C // uint32 (spin lock word, holder pid or 0)
	offMemSize       = 0x020 // uint64
	offSlotCount     = 0x028 // uint64
	offBucketCount   = 0x030 // uint64
	offInUse         = 0x038 // uint64
	offSlotsOffset   = 0x040 // uint64
	offBucketsOffset = 0x048 // uint64
	offFreeList      = 0x050 // rlist head
	offLRUList       = 0x060 // rlist head
	offHeaderCRC32C  = 0x070 // uint32
	offReserved      = 0x074 // reserved bytes through 0x07F
)

// Slot field offsets (bytes from slot start).
const (
	slotOffList       = 0x00 // rlist link: free list or LRU list
	slotOffHash       = 0x10 // rlist link: bucket chain
	slotOffHashIdx    = 0x20 // uint64
	slotOffKeyLen     = 0x28 // uint32
	slotOffPayloadLen = 0x2C // uint32
	slotOffKey        = 0x30 // [keySize]byte, payload follows
)

// shq1Header holds the immutable part of the header plus the in-use count.
type shq1Header struct {
	Version       uint32
	HeaderSize    uint32
	SlotSize      uint32
	KeySize       uint32
	PayloadSize   uint32
	HashAlg       uint32
	MemSize       uint64
	SlotCount     uint64
	BucketCount   uint64
	InUse         uint64
	SlotsOffset   uint64
	BucketsOffset uint64
}

// writeHeader serializes header into the first shq1HeaderSize bytes of seg.
// List heads and the lock word are left to the caller. The CRC is computed
// and stored.
func writeHeader(seg []byte, header *shq1Header) {
	clear(seg[:shq1HeaderSize])

	copy(seg[offMagic:], shq1Magic[:])
	binary.LittleEndian.PutUint32(seg[offVersion:], header.Version)
	binary.LittleEndian.PutUint32(seg[offHeaderSize:], header.HeaderSize)
	binary.LittleEndian.PutUint32(seg[offSlotSize:], header.SlotSize)
	binary.LittleEndian.PutUint32(seg[offKeySize:], header.KeySize)
	binary.LittleEndian.PutUint32(seg[offPayloadSize:], header.PayloadSize)
	binary.LittleEndian.PutUint32(seg[offHashAlg:], header.HashAlg)

	binary.LittleEndian.PutUint64(seg[offMemSize:], header.MemSize)
	binary.LittleEndian.PutUint64(seg[offSlotCount:], header.SlotCount)
	binary.LittleEndian.PutUint64(seg[offBucketCount:], header.BucketCount)
	binary.LittleEndian.PutUint64(seg[offInUse:], header.InUse)
	binary.LittleEndian.PutUint64(seg[offSlotsOffset:], header.SlotsOffset)
	binary.LittleEndian.PutUint64(seg[offBucketsOffset:], header.BucketsOffset)

	binary.LittleEndian.PutUint32(seg[offHeaderCRC32C:], computeHeaderCRC(seg))
}

// readHeader deserializes the header fields. It does not validate them.
func readHeader(seg []byte) shq1Header {
	return shq1Header{
		Version:       binary.LittleEndian.Uint32(seg[offVersion:]),
		HeaderSize:    binary.LittleEndian.Uint32(seg[offHeaderSize:]),
		SlotSize:      binary.LittleEndian.Uint32(seg[offSlotSize:]),
		KeySize:       binary.LittleEndian.Uint32(seg[offKeySize:]),
		PayloadSize:   binary.LittleEndian.Uint32(seg[offPayloadSize:]),
		HashAlg:       binary.LittleEndian.Uint32(seg[offHashAlg:]),
		MemSize:       binary.LittleEndian.Uint64(seg[offMemSize:]),
		SlotCount:     binary.LittleEndian.Uint64(seg[offSlotCount:]),
		BucketCount:   binary.LittleEndian.Uint64(seg[offBucketCount:]),
		InUse:         binary.LittleEndian.Uint64(seg[offInUse:]),
		SlotsOffset:   binary.LittleEndian.Uint64(seg[offSlotsOffset:]),
		BucketsOffset: binary.LittleEndian.Uint64(seg[offBucketsOffset:]),
	}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// computeHeaderCRC calculates the CRC32-C of the fields that never change
// after Create. The lock word, in-use count and list heads are excluded.
func computeHeaderCRC(seg []byte) uint32 {
	crc := crc32.Update(0, castagnoli, seg[offMagic:offLock])
	crc = crc32.Update(crc, castagnoli, seg[offMemSize:offInUse])

	return crc32.Update(crc, castagnoli, seg[offSlotsOffset:offFreeList])
}

// validateHeaderCRC checks if the stored CRC matches the computed CRC.
func validateHeaderCRC(seg []byte) bool {
	return binary.LittleEndian.Uint32(seg[offHeaderCRC32C:]) == computeHeaderCRC(seg)
}

// computeSlotSize calculates the slot record size:
//
//	slot_size = align8( links(32) + hashidx(8) + key_len(4) + payload_len(4) + key_size + payload_size )
//
// Returns ErrInvalidInput if the size exceeds implementation limits.
func computeSlotSize(keySize, payloadSize uint32) (uint32, error) {
	aligned := align8U64(uint64(slotOffKey) + uint64(keySize) + uint64(payloadSize))

	if aligned > uint64(maxSlotSizeBytes) {
		return 0, fmt.Errorf("computed slot_size %d exceeds max slot size %d: %w", aligned, maxSlotSizeBytes, ErrInvalidInput)
	}

	return uint32(aligned), nil
}

// align8U64 rounds x up to the next multiple of 8.
func align8U64(x uint64) uint64 {
	return (x + 7) &^ 7
}

// alignUp rounds x up to the next multiple of align (a power of two).
func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}
