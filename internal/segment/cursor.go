package segment

import (
	"sort"

	"github.com/tidalstore/lsmtree/internal/tree"
)

// SeekMode selects one of the four seek flavors a segment cursor offers.
type SeekMode int

const (
	// EQ requires an exact match; the cursor is invalidated otherwise.
	EQ SeekMode = iota
	// LE finds the largest key <= the search key.
	LE
	// GE finds the smallest key >= the search key.
	GE
	// LEFast finds a key guaranteed >= any live key <= the search key,
	// possibly already deleted — used for fast key allocation where the
	// caller only needs an upper bound, not a live value. Because this
	// segment cursor does not itself distinguish live from tombstoned
	// entries (that filtering happens in internal/merge's IGNORE_DELETE
	// mode, which sees the union of all levels), LEFast coincides with LE
	// here: both return the largest physical key <= the search key.
	LEFast
)

// Cursor walks one Segment's entries in key order.
type Cursor struct {
	seg *Segment
	pos int // -1 = before first, len(Entries) = past last

	isAtBegin bool
	isAtEnd   bool
}

// NewCursor returns a cursor positioned before the segment's first entry.
func NewCursor(seg *Segment) *Cursor {
	return &Cursor{seg: seg, pos: -1, isAtBegin: true}
}

// Valid reports whether the cursor currently sits on a real entry.
func (c *Cursor) Valid() bool {
	return c.pos >= 0 && c.pos < len(c.seg.Entries)
}

// Entry returns the entry the cursor currently sits on. Callers must
// check Valid first.
func (c *Cursor) Entry() *tree.Entry { return c.seg.Entries[c.pos] }

// Key returns the current entry's key.
func (c *Cursor) Key() []byte { return c.Entry().Key }

// Seek repositions the cursor per mode relative to key.
func (c *Cursor) Seek(mode SeekMode, key []byte) bool {
	entries := c.seg.Entries
	// idx is the first index with Entries[idx].Key >= key (sort.Search
	// over an ascending slice).
	idx := sort.Search(len(entries), func(i int) bool {
		return tree.CompareKeys(entries[i].Key, key) >= 0
	})

	switch mode {
	case EQ:
		if idx < len(entries) && tree.CompareKeys(entries[idx].Key, key) == 0 {
			c.setPos(idx)
			return true
		}
		c.invalidate()
		return false

	case GE:
		if idx < len(entries) {
			c.setPos(idx)
			return true
		}
		c.invalidate()
		return false

	case LE, LEFast:
		if idx < len(entries) && tree.CompareKeys(entries[idx].Key, key) == 0 {
			c.setPos(idx)
			return true
		}
		if idx == 0 {
			c.invalidate()
			return false
		}
		c.setPos(idx - 1)
		return true
	}
	c.invalidate()
	return false
}

// First positions the cursor at the segment's smallest key.
func (c *Cursor) First() bool {
	if len(c.seg.Entries) == 0 {
		c.invalidate()
		return false
	}
	c.setPos(0)
	return true
}

// Last positions the cursor at the segment's largest key.
func (c *Cursor) Last() bool {
	if len(c.seg.Entries) == 0 {
		c.invalidate()
		return false
	}
	c.setPos(len(c.seg.Entries) - 1)
	return true
}

// Next advances the cursor one entry forward.
func (c *Cursor) Next() bool {
	if c.pos+1 >= len(c.seg.Entries) {
		c.pos = len(c.seg.Entries)
		c.isAtEnd = true
		c.isAtBegin = false
		return false
	}
	c.setPos(c.pos + 1)
	return true
}

// Prev moves the cursor one entry backward.
func (c *Cursor) Prev() bool {
	if c.pos-1 < 0 {
		c.pos = -1
		c.isAtBegin = true
		c.isAtEnd = false
		return false
	}
	c.setPos(c.pos - 1)
	return true
}

func (c *Cursor) setPos(pos int) {
	c.pos = pos
	c.isAtBegin = pos == 0
	c.isAtEnd = false
}

func (c *Cursor) invalidate() {
	c.pos = -1
	c.isAtBegin = true
	c.isAtEnd = false
}
