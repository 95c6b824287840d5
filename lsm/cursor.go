package lsm

import (
	"math"
	"sort"

	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/merge"
	"github.com/tidalstore/lsmtree/internal/segment"
	"github.com/tidalstore/lsmtree/internal/tree"
)

// SeekMode selects one of the four seek flavors (§6): EQ requires an
// exact match, LE the largest key <= the search key, GE the smallest
// key >= it, and LEFast a fast upper bound that may already be deleted.
type SeekMode int

const (
	SeekEQ SeekMode = iota
	SeekLE
	SeekGE
	SeekLEFast
)

// Cursor walks the merged view of the live tree and every on-disk
// segment, newest-first, coalescing tombstones the way a user-facing
// IGNORE_DELETE multi-cursor does (§4.5). Like internal/tree.Iterator
// and internal/segment.Cursor, it materializes its ordered view up front
// rather than re-running the merge on every step: the number of entries
// a single open cursor needs to hold is bounded by the live database
// size at the instant it was opened, and a fixed slice gives Cmp/Prev/
// Next a single, simple, bidirectional representation instead of
// needing a second reverse-merge implementation.
type Cursor struct {
	entries []*tree.Entry
	pos     int // -1 before first, len(entries) past last

	lastMode SeekMode
	haveLast bool
	lastErr  error
}

// OpenCursor returns a cursor over db's current state, positioned before
// the first entry.
func (db *DB) OpenCursor() (*Cursor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	components := make([]merge.Component, 0, 1+len(db.levels))
	components = append(components, tree.NewIterator(db.tr, db.tr.Header().Root, math.MaxUint64))
	for _, seg := range db.levels {
		components = append(components, segment.NewCursor(seg))
	}
	mc := merge.New(merge.ModeIgnoreDelete, components...)

	var out []*tree.Entry
	for mc.Next() {
		out = append(out, mc.Entry().Clone())
	}
	return &Cursor{entries: out, pos: -1}, nil
}

// Close releases the cursor. A Cursor holds no external resources (its
// view was materialized at OpenCursor time), so Close is a no-op kept
// for API symmetry with the handle API's explicit cursor lifecycle
// (§6 "cursor open/close/...").
func (c *Cursor) Close() error { return nil }

// Valid reports whether the cursor currently sits on an entry.
func (c *Cursor) Valid() bool { return c.pos >= 0 && c.pos < len(c.entries) }

// Key returns the current entry's key. Valid must be true.
func (c *Cursor) Key() []byte { return c.entries[c.pos].Key }

// Value returns the current entry's value. Valid must be true.
func (c *Cursor) Value() []byte { return c.entries[c.pos].Value }

// Cmp compares the cursor's current key against other.
func (c *Cursor) Cmp(other []byte) int {
	return tree.CompareKeys(c.entries[c.pos].Key, other)
}

// First positions the cursor at the smallest key.
func (c *Cursor) First() bool {
	c.haveLast = false
	c.lastErr = nil
	if len(c.entries) == 0 {
		c.pos = 0
		return false
	}
	c.pos = 0
	return true
}

// Last positions the cursor at the largest key.
func (c *Cursor) Last() bool {
	c.haveLast = false
	c.lastErr = nil
	if len(c.entries) == 0 {
		c.pos = 0
		return false
	}
	c.pos = len(c.entries) - 1
	return true
}

// Next advances the cursor forward one entry. It is MISUSE to call Next
// right after a seek that moved the cursor in the opposite direction
// (LE followed by Next, without an intervening First/Seek(GE/EQ)).
func (c *Cursor) Next() bool {
	if c.haveLast && c.lastMode == SeekLE {
		c.lastErr = errMisuseDirection
		return false
	}
	c.lastErr = nil
	c.haveLast = false
	if c.pos < len(c.entries) {
		c.pos++
	}
	return c.Valid()
}

// Prev steps the cursor back one entry. See Next's direction caveat.
func (c *Cursor) Prev() bool {
	if c.haveLast && (c.lastMode == SeekGE || c.lastMode == SeekLEFast) {
		c.lastErr = errMisuseDirection
		return false
	}
	c.lastErr = nil
	c.haveLast = false
	if c.pos > 0 {
		c.pos--
	} else {
		c.pos = -1
		return false
	}
	return c.Valid()
}

// LastError returns the MISUSE error from the most recent Next/Prev call
// that refused to move the cursor because it conflicted with the
// direction implied by the last Seek, or nil if the last move (if any)
// was not rejected for that reason.
func (c *Cursor) LastError() error { return c.lastErr }

// Seek repositions the cursor per mode relative to key (§6's four seek
// flavors). Found reports whether a qualifying entry exists.
func (c *Cursor) Seek(mode SeekMode, key []byte) bool {
	idx := sort.Search(len(c.entries), func(i int) bool {
		return tree.CompareKeys(c.entries[i].Key, key) >= 0
	})
	c.lastMode = mode
	c.haveLast = true
	c.lastErr = nil

	switch mode {
	case SeekEQ:
		if idx < len(c.entries) && tree.CompareKeys(c.entries[idx].Key, key) == 0 {
			c.pos = idx
			return true
		}
		c.pos = len(c.entries)
		return false
	case SeekGE:
		c.pos = idx
		return c.Valid()
	case SeekLE, SeekLEFast:
		if idx < len(c.entries) && tree.CompareKeys(c.entries[idx].Key, key) == 0 {
			c.pos = idx
			return true
		}
		c.pos = idx - 1
		return c.Valid()
	default:
		return false
	}
}

// errMisuseDirection is the MISUSE error LastError returns after Next/Prev
// refuses to move the cursor against the direction implied by the last
// Seek, matching §7's requirement that misuse be reported rather than
// silently ignored even though Next/Prev keep the teacher's bool-return
// cursor style (see internal/segment.Cursor, internal/tree.Iterator).
var errMisuseDirection = errs.New(errs.Misuse, "lsm: cursor advanced in a direction incompatible with its last seek")
