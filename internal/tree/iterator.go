package tree

import (
	"sort"

	"github.com/tidalstore/lsmtree/internal/arena"
)

// Iterator walks every entry of a tree snapshot in ascending key order.
// It materializes the in-order traversal up front rather than walking
// node-by-node lazily: an in-memory tree is bounded by the
// make-old/flush threshold, so holding its full key set as a slice
// during a flush or merge pass is cheap and keeps the walk immune to
// concurrent structural changes on the live tree (it only ever touches
// the node set reachable from the root handle it was built from).
type Iterator struct {
	entries []*Entry
	pos     int
}

// NewIterator walks the tree rooted at root as seen by readerTxid and
// returns an Iterator positioned before the first entry.
func NewIterator(t *Tree, root arena.Handle, readerTxid uint64) *Iterator {
	it := &Iterator{pos: -1}
	t.collectInOrder(root, readerTxid, &it.entries)
	return it
}

func (t *Tree) collectInOrder(h arena.Handle, readerTxid uint64, out *[]*Entry) {
	n := t.node(h)
	if n.Leaf {
		*out = append(*out, n.Keys...)
		return
	}
	children := n.viewChildren(readerTxid)
	for i, key := range n.Keys {
		t.collectInOrder(children[i], readerTxid, out)
		*out = append(*out, key)
	}
	t.collectInOrder(children[len(children)-1], readerTxid, out)
}

// Valid reports whether the iterator currently sits on an entry.
func (it *Iterator) Valid() bool { return it.pos >= 0 && it.pos < len(it.entries) }

// Entry returns the current entry. Callers must check Valid first.
func (it *Iterator) Entry() *Entry { return it.entries[it.pos] }

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.entries[it.pos].Key }

// First positions the iterator at the smallest key.
func (it *Iterator) First() bool {
	if len(it.entries) == 0 {
		it.pos = -1
		return false
	}
	it.pos = 0
	return true
}

// Next advances the iterator one entry forward.
func (it *Iterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		it.pos = len(it.entries)
		return false
	}
	it.pos++
	return true
}

// Last positions the iterator at the largest key.
func (it *Iterator) Last() bool {
	if len(it.entries) == 0 {
		it.pos = -1
		return false
	}
	it.pos = len(it.entries) - 1
	return true
}

// Prev moves the iterator one entry backward.
func (it *Iterator) Prev() bool {
	if it.pos-1 < 0 {
		it.pos = -1
		return false
	}
	it.pos--
	return true
}

// SeekKey repositions the iterator per mode (mirroring
// internal/segment.Cursor's EQ/LE/GE flavors) relative to key, using a
// binary search over the already-sorted materialized entry slice.
func (it *Iterator) SeekKey(mode int, key []byte) bool {
	idx := sort.Search(len(it.entries), func(i int) bool {
		return CompareKeys(it.entries[i].Key, key) >= 0
	})
	switch mode {
	case SeekEQ:
		if idx < len(it.entries) && CompareKeys(it.entries[idx].Key, key) == 0 {
			it.pos = idx
			return true
		}
		it.pos = -1
		return false
	case SeekGE:
		if idx < len(it.entries) {
			it.pos = idx
			return true
		}
		it.pos = len(it.entries)
		return false
	case SeekLE:
		if idx < len(it.entries) && CompareKeys(it.entries[idx].Key, key) == 0 {
			it.pos = idx
			return true
		}
		if idx == 0 {
			it.pos = -1
			return false
		}
		it.pos = idx - 1
		return true
	}
	it.pos = -1
	return false
}

// Seek mode constants for SeekKey, mirroring internal/segment.SeekMode.
const (
	SeekEQ = iota
	SeekLE
	SeekGE
)
