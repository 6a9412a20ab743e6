// Package model provides a deliberately simple, in-memory state model of
// shmcache's publicly observable behavior.
//
// The model keeps entries in a plain slice ordered from most to least
// recently used. It knows nothing about slots, buckets or offsets, which makes
// it easy to audit and a useful oracle for randomized tests.
package model

import (
	"bytes"
	"slices"

	"github.com/calvinalkan/shmcache/pkg/shmcache"
)

// Entry is one stored key with its payload.
type Entry struct {
	Key     string
	Payload []byte
}

// CacheModel mirrors a [shmcache.Cache] of the same capacities.
type CacheModel struct {
	Capacity    int
	KeySize     int
	PayloadSize int

	// Entries is ordered most recently used first.
	Entries []Entry
}

// New returns an empty model. It panics on a non-positive capacity; callers
// size it from a real cache.
func New(capacity, keySize, payloadSize int) *CacheModel {
	if capacity <= 0 {
		panic("model: capacity must be positive")
	}

	return &CacheModel{
		Capacity:    capacity,
		KeySize:     keySize,
		PayloadSize: payloadSize,
		Entries:     []Entry{},
	}
}

// Clone makes a deep copy.
func (m *CacheModel) Clone() *CacheModel {
	entries := make([]Entry, len(m.Entries))
	for i, e := range m.Entries {
		entries[i] = Entry{Key: e.Key, Payload: bytes.Clone(e.Payload)}
	}

	clone := *m
	clone.Entries = entries

	return &clone
}

func (m *CacheModel) find(key string) int {
	return slices.IndexFunc(m.Entries, func(e Entry) bool { return e.Key == key })
}

// touch moves entry i to the front and returns it.
func (m *CacheModel) touch(i int) Entry {
	e := m.Entries[i]
	m.Entries = slices.Delete(m.Entries, i, i+1)
	m.Entries = slices.Insert(m.Entries, 0, e)

	return e
}

// Store mirrors [shmcache.Cache.Store].
func (m *CacheModel) Store(key string, payload []byte) error {
	if len(key) > m.KeySize {
		return shmcache.ErrKeyTooLarge
	}

	if len(payload) > m.PayloadSize {
		return shmcache.ErrPayloadTooLarge
	}

	if i := m.find(key); i >= 0 {
		m.Entries[i].Payload = bytes.Clone(payload)
		m.touch(i)

		return nil
	}

	if len(m.Entries) >= m.Capacity {
		return shmcache.ErrCapacityExhausted
	}

	m.Entries = slices.Insert(m.Entries, 0, Entry{Key: key, Payload: bytes.Clone(payload)})

	return nil
}

// Fetch mirrors [shmcache.Cache.Fetch] and [shmcache.Cache.Peek], which only
// differ in copying.
func (m *CacheModel) Fetch(key string) ([]byte, error) {
	i := m.find(key)
	if i < 0 {
		return nil, shmcache.ErrKeyNotFound
	}

	return bytes.Clone(m.touch(i).Payload), nil
}

// Delete mirrors [shmcache.Cache.Delete].
func (m *CacheModel) Delete(key string) error {
	i := m.find(key)
	if i < 0 {
		return shmcache.ErrKeyNotFound
	}

	m.Entries = slices.Delete(m.Entries, i, i+1)

	return nil
}

// GetOldest mirrors [shmcache.Cache.GetOldest].
func (m *CacheModel) GetOldest() (Entry, error) {
	if len(m.Entries) == 0 {
		return Entry{}, shmcache.ErrEmpty
	}

	last := m.Entries[len(m.Entries)-1]
	m.Entries = m.Entries[:len(m.Entries)-1]

	return last, nil
}

// InUse mirrors [shmcache.Cache.InUse].
func (m *CacheModel) InUse() int { return len(m.Entries) }

// Watermark mirrors [shmcache.Cache.Watermark].
func (m *CacheModel) Watermark() bool {
	return len(m.Entries) >= m.Capacity-m.Capacity/8
}

// Keys returns the keys most recently used first.
func (m *CacheModel) Keys() []string {
	keys := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		keys[i] = e.Key
	}

	return keys
}
