package shmcache

import "encoding/binary"

// Sizes of the on-segment list structures.
const (
	rlistHeadSize = 16 // first, last
	rlistLinkSize = 16 // next, prev
)

// rlist is an intrusive doubly-linked list stored inside seg.
//
// Every link (head.first, head.last, node.next, node.prev) is a byte offset
// from the start of seg, and 0 means "none". Offset 0 is always the segment
// header, so it can never be an element. Because nothing stores an address,
// the same bytes describe the same list in every process, wherever that
// process mapped the segment.
//
// Elements are identified by their own offset; the link pair lives at field
// bytes into the element. One element can sit on several lists at once as long
// as each list uses a different field.
//
// rlist is a cheap value. It is not safe for concurrent use; callers hold the
// segment lock.
type rlist struct {
	seg   []byte
	head  uint64 // offset of the {first, last} pair
	field uint64 // offset of the {next, prev} pair inside each element
}

func (l rlist) load(off uint64) uint64 {
	return binary.LittleEndian.Uint64(l.seg[off:])
}

func (l rlist) store(off, val uint64) {
	binary.LittleEndian.PutUint64(l.seg[off:], val)
}

// init makes the list empty. It does not touch any element.
func (l rlist) init() {
	l.store(l.head, 0)
	l.store(l.head+8, 0)
}

func (l rlist) empty() bool { return l.first() == 0 }

func (l rlist) first() uint64 { return l.load(l.head) }

func (l rlist) last() uint64 { return l.load(l.head + 8) }

func (l rlist) next(elem uint64) uint64 { return l.load(elem + l.field) }

func (l rlist) prev(elem uint64) uint64 { return l.load(elem + l.field + 8) }

func (l rlist) setFirst(elem uint64) { l.store(l.head, elem) }

func (l rlist) setLast(elem uint64) { l.store(l.head+8, elem) }

func (l rlist) setNext(elem, next uint64) { l.store(elem+l.field, next) }

func (l rlist) setPrev(elem, prev uint64) { l.store(elem+l.field+8, prev) }

// insertHead links elem in front of the current first element.
func (l rlist) insertHead(elem uint64) {
	first := l.first()

	l.setNext(elem, first)
	l.setPrev(elem, 0)

	if first != 0 {
		l.setPrev(first, elem)
	} else {
		l.setLast(elem)
	}

	l.setFirst(elem)
}

// insertTail links elem after the current last element.
func (l rlist) insertTail(elem uint64) {
	last := l.last()

	l.setNext(elem, 0)
	l.setPrev(elem, last)

	if last != 0 {
		l.setNext(last, elem)
	} else {
		l.setFirst(elem)
	}

	l.setLast(elem)
}

// insertAfter links elem directly after at, which must be on the list.
func (l rlist) insertAfter(at, elem uint64) {
	next := l.next(at)

	l.setNext(elem, next)
	l.setPrev(elem, at)

	if next != 0 {
		l.setPrev(next, elem)
	} else {
		l.setLast(elem)
	}

	l.setNext(at, elem)
}

// insertBefore links elem directly before at, which must be on the list.
func (l rlist) insertBefore(at, elem uint64) {
	prev := l.prev(at)

	l.setNext(elem, at)
	l.setPrev(elem, prev)

	if prev != 0 {
		l.setNext(prev, elem)
	} else {
		l.setFirst(elem)
	}

	l.setPrev(at, elem)
}

// remove unlinks elem, which must be on the list, and clears its links.
func (l rlist) remove(elem uint64) {
	next := l.next(elem)
	prev := l.prev(elem)

	if next != 0 {
		l.setPrev(next, prev)
	} else {
		l.setLast(prev)
	}

	if prev != 0 {
		l.setNext(prev, next)
	} else {
		l.setFirst(next)
	}

	l.setNext(elem, 0)
	l.setPrev(elem, 0)
}

// all iterates from first to last. The list must not be modified while
// iterating, except for removing the element just yielded.
func (l rlist) all() func(yield func(uint64) bool) {
	return func(yield func(uint64) bool) {
		for elem := l.first(); elem != 0; {
			next := l.next(elem)
			if !yield(elem) {
				return
			}

			elem = next
		}
	}
}
