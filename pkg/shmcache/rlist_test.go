package shmcache

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Elements are 32 bytes apart starting at 64, each with a link at field 0.
// The head lives at offset 16.
func newTestList(t *testing.T) rlist {
	t.Helper()

	l := rlist{seg: make([]byte, 64+32*8), head: 16, field: 0}
	l.init()

	return l
}

func elem(i int) uint64 { return uint64(64 + 32*i) }

func collect(l rlist) []uint64 {
	return slices.Collect(l.all())
}

func collectReverse(l rlist) []uint64 {
	var out []uint64

	for e := l.last(); e != 0; e = l.prev(e) {
		out = append(out, e)
	}

	return out
}

func Test_Rlist_Keeps_Forward_And_Backward_Order_When_Mixing_Inserts(t *testing.T) {
	t.Parallel()

	l := newTestList(t)

	if !l.empty() {
		t.Fatal("fresh list not empty")
	}

	l.insertTail(elem(1))
	l.insertHead(elem(0))
	l.insertTail(elem(3))
	l.insertBefore(elem(3), elem(2))
	l.insertAfter(elem(3), elem(4))

	want := []uint64{elem(0), elem(1), elem(2), elem(3), elem(4)}

	if diff := cmp.Diff(want, collect(l)); diff != "" {
		t.Fatalf("forward order mismatch (-want +got):\n%s", diff)
	}

	reversed := slices.Clone(want)
	slices.Reverse(reversed)

	if diff := cmp.Diff(reversed, collectReverse(l)); diff != "" {
		t.Fatalf("backward order mismatch (-want +got):\n%s", diff)
	}
}

func Test_Rlist_Updates_Head_And_Clears_Links_When_Removing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		remove []int
		want   []uint64
	}{
		{name: "first", remove: []int{0}, want: []uint64{elem(1), elem(2)}},
		{name: "middle", remove: []int{1}, want: []uint64{elem(0), elem(2)}},
		{name: "last", remove: []int{2}, want: []uint64{elem(0), elem(1)}},
		{name: "all", remove: []int{1, 0, 2}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := newTestList(t)
			for i := range 3 {
				l.insertTail(elem(i))
			}

			for _, i := range tt.remove {
				l.remove(elem(i))

				if l.next(elem(i)) != 0 || l.prev(elem(i)) != 0 {
					t.Fatalf("removed element %d still has links", i)
				}
			}

			if diff := cmp.Diff(tt.want, collect(l)); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}

			if len(tt.want) == 0 {
				if l.first() != 0 || l.last() != 0 {
					t.Fatalf("empty list head = {%d, %d}, want {0, 0}", l.first(), l.last())
				}

				return
			}

			if l.first() != tt.want[0] || l.last() != tt.want[len(tt.want)-1] {
				t.Fatalf("head = {%d, %d}, want {%d, %d}", l.first(), l.last(), tt.want[0], tt.want[len(tt.want)-1])
			}
		})
	}
}

func Test_Rlist_Allows_Removing_Yielded_Element_When_Iterating(t *testing.T) {
	t.Parallel()

	l := newTestList(t)
	for i := range 5 {
		l.insertTail(elem(i))
	}

	for e := range l.all() {
		if (e-64)/32%2 == 0 {
			l.remove(e)
		}
	}

	if diff := cmp.Diff([]uint64{elem(1), elem(3)}, collect(l)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func Test_Rlist_Reads_Same_Structure_When_Bytes_Copied_Elsewhere(t *testing.T) {
	t.Parallel()

	l := newTestList(t)
	for i := range 4 {
		l.insertHead(elem(i))
	}

	// A second mapping of the same bytes at a different address.
	moved := rlist{seg: slices.Clone(l.seg), head: l.head, field: l.field}

	if diff := cmp.Diff(collect(l), collect(moved)); diff != "" {
		t.Fatalf("copied list differs (-orig +copy):\n%s", diff)
	}
}

func Test_Rlist_Keeps_Lists_Independent_When_Element_On_Two_Fields(t *testing.T) {
	t.Parallel()

	seg := make([]byte, 64+32*4)
	a := rlist{seg: seg, head: 0, field: 0}
	b := rlist{seg: seg, head: 16, field: 16}

	a.init()
	b.init()

	for i := range 3 {
		a.insertTail(elem(i))
		b.insertHead(elem(i))
	}

	b.remove(elem(1))

	if diff := cmp.Diff([]uint64{elem(0), elem(1), elem(2)}, collect(a)); diff != "" {
		t.Fatalf("list a disturbed (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]uint64{elem(2), elem(0)}, collect(b)); diff != "" {
		t.Fatalf("list b mismatch (-want +got):\n%s", diff)
	}
}
