package shmcache

import "encoding/binary"

// The LRU list shares the slotOffList link with the free list: a slot is on
// exactly one of them. Head is most recently used, tail least recently used.

func (c *Cache) lruList() rlist {
	return rlist{seg: c.seg, head: offLRUList, field: slotOffList}
}

// touchLocked moves an in-use slot to the LRU head.
func (c *Cache) touchLocked(slot uint64) {
	lru := c.lruList()
	if lru.first() == slot {
		return
	}

	lru.remove(slot)
	lru.insertHead(slot)
}

// linkLocked makes a freshly popped slot in use: LRU head, head of bucket idx.
func (c *Cache) linkLocked(slot, idx uint64) {
	c.setSlotHashIdx(slot, idx)
	c.lruList().insertHead(slot)
	c.bucket(idx).insertHead(slot)
	c.addInUse(1)
}

// unlinkLocked removes an in-use slot from the LRU list and from the chain
// recorded in its hashidx. The caller returns it to the free list.
func (c *Cache) unlinkLocked(slot uint64) {
	c.lruList().remove(slot)
	c.bucket(c.slotHashIdx(slot)).remove(slot)
	c.addInUse(-1)
}

func (c *Cache) inUseLocked() uint64 {
	return binary.LittleEndian.Uint64(c.seg[offInUse:])
}

func (c *Cache) addInUse(delta int64) {
	binary.LittleEndian.PutUint64(c.seg[offInUse:], uint64(int64(c.inUseLocked())+delta))
}
