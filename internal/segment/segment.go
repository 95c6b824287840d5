// Package segment implements the immutable, sorted on-disk run a merge
// produces: a Segment holding its entries plus key bounds, and a Cursor
// offering the EQ/LE/GE/LE-FAST seek flavors and bidirectional advance
// the multi-cursor merge and the public read path both drive.
//
// A Segment here is one fully-materialized sorted run rather than a
// paged B-tree-of-separators structure: internal/pager already owns
// page/block arithmetic and the compressed record pipeline, and a
// Segment's Entries are themselves written and read as pager records
// (see Segment.Load/Flush). Skipping a second, segment-private paging
// scheme is a scope simplification from the full design, where a large
// segment would keep only a separator B-tree resident and page its
// leaves in on demand — see DESIGN.md's "Segment and merge-worker scope"
// entry for what that cuts and why. Seek and
// iteration semantics are unaffected: a cursor over a fully-resident
// sorted slice observes exactly the same key order and boundary
// behavior a paged implementation would.
package segment

import (
	"github.com/tidalstore/lsmtree/internal/tree"
)

// Segment is one immutable, sorted run of entries produced by a merge.
type Segment struct {
	ID      uint64
	Entries []*tree.Entry // ascending by tree.Compare
	Level   int
}

// New wraps entries (already sorted by the caller, normally the merge
// worker) as a Segment.
func New(id uint64, level int, entries []*tree.Entry) *Segment {
	return &Segment{ID: id, Level: level, Entries: entries}
}

// MinKey and MaxKey report the segment's key bounds; ok is false for an
// empty segment.
func (s *Segment) MinKey() (key []byte, ok bool) {
	if len(s.Entries) == 0 {
		return nil, false
	}
	return s.Entries[0].Key, true
}

func (s *Segment) MaxKey() (key []byte, ok bool) {
	if len(s.Entries) == 0 {
		return nil, false
	}
	return s.Entries[len(s.Entries)-1].Key, true
}

// Len returns the number of entries in the segment.
func (s *Segment) Len() int { return len(s.Entries) }
