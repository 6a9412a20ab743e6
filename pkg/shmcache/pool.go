package shmcache

import "encoding/binary"

// Slots are addressed by their byte offset from the segment start. Index i
// lives at slotsOffset + i*slotSize.

func (c *Cache) slotOffset(idx uint64) uint64 {
	return c.slotsOffset + idx*uint64(c.slotSize)
}

func (c *Cache) slotIndex(slot uint64) uint64 {
	return (slot - c.slotsOffset) / uint64(c.slotSize)
}

func (c *Cache) freeList() rlist {
	return rlist{seg: c.seg, head: offFreeList, field: slotOffList}
}

// popFreeLocked takes the head of the free list and clears its transient
// fields. Returns false when the pool is exhausted.
func (c *Cache) popFreeLocked() (uint64, bool) {
	free := c.freeList()

	slot := free.first()
	if slot == 0 {
		return 0, false
	}

	free.remove(slot)

	c.setSlotHashIdx(slot, 0)
	c.setSlotPayloadLen(slot, 0)

	return slot, true
}

// pushFreeLocked returns slot to the head of the free list. The slot must
// already be unlinked from the LRU list and its bucket chain.
func (c *Cache) pushFreeLocked(slot uint64) {
	c.freeList().insertHead(slot)
}

func (c *Cache) slotHashIdx(slot uint64) uint64 {
	return binary.LittleEndian.Uint64(c.seg[slot+slotOffHashIdx:])
}

func (c *Cache) setSlotHashIdx(slot, idx uint64) {
	binary.LittleEndian.PutUint64(c.seg[slot+slotOffHashIdx:], idx)
}

func (c *Cache) slotKeyLen(slot uint64) uint64 {
	return uint64(binary.LittleEndian.Uint32(c.seg[slot+slotOffKeyLen:]))
}

func (c *Cache) slotPayloadLen(slot uint64) uint64 {
	return uint64(binary.LittleEndian.Uint32(c.seg[slot+slotOffPayloadLen:]))
}

func (c *Cache) setSlotPayloadLen(slot, n uint64) {
	binary.LittleEndian.PutUint32(c.seg[slot+slotOffPayloadLen:], uint32(n))
}

// slotKeyBytes aliases the stored key inside the segment.
func (c *Cache) slotKeyBytes(slot uint64) []byte {
	start := slot + slotOffKey

	return c.seg[start : start+c.slotKeyLen(slot)]
}

func (c *Cache) slotKeyEquals(slot uint64, key string) bool {
	return string(c.slotKeyBytes(slot)) == key
}

// slotPayload aliases the stored payload inside the segment. The capacity is
// clipped so appending to the result never writes into the segment.
func (c *Cache) slotPayload(slot uint64) []byte {
	start := slot + slotOffKey + uint64(c.keySize)
	end := start + c.slotPayloadLen(slot)

	return c.seg[start:end:end]
}

// writeKey copies key into slot. Length was checked by the caller.
func (c *Cache) writeKey(slot uint64, key string) {
	binary.LittleEndian.PutUint32(c.seg[slot+slotOffKeyLen:], uint32(len(key)))
	copy(c.seg[slot+slotOffKey:], key)
}

// writePayload copies payload into slot. Length was checked by the caller.
func (c *Cache) writePayload(slot uint64, payload []byte) {
	c.setSlotPayloadLen(slot, uint64(len(payload)))
	copy(c.seg[slot+slotOffKey+uint64(c.keySize):], payload)
}
