// Package merge implements the multi-cursor K-way merge over an ordered
// set of components (tree iterators and segment cursors) and the merge
// worker that drives one to build a new segment, including the
// range-delete coalescing rules that keep tombstones from leaking past
// the point where every level they cover has been merged together.
package merge

import (
	"github.com/tidalstore/lsmtree/internal/tree"
)

// Component is anything a MultiCursor can merge: internal/tree's
// Iterator and internal/segment's Cursor both already expose exactly
// this shape.
type Component interface {
	Valid() bool
	Entry() *tree.Entry
	Key() []byte
	Next() bool
}

// Mode selects how the multi-cursor treats entries that are not live
// inserts.
type Mode int

const (
	// ModeFlush visits every boundary entry (START_DELETE, END_DELETE,
	// POINT_DELETE) as well as inserts, the mode a merge worker building
	// a new segment needs so it can carry tombstones forward correctly.
	ModeFlush Mode = iota
	// ModeIgnoreDelete skips entries whose effective type lacks Insert
	// and whose position is not covered by a newer START/END boundary,
	// the mode user-facing read cursors run in.
	ModeIgnoreDelete
)

// MultiCursor merges an ordered list of components — newest (index 0)
// to oldest — into a single ascending stream, applying the §4.5.1
// range-delete coalescing rules at every position more than one
// component contributes to (both at a tied key and, via open, at a
// position a newer component's still-unclosed StartDelete straddles
// without being tied to it).
type MultiCursor struct {
	components []Component
	mode       Mode

	// open[i] tracks whether component i has emitted a pure StartDelete
	// boundary whose matching pure EndDelete it has not yet reached. While
	// true, component i's range-delete cover is understood to extend from
	// that StartDelete up to (but not including) wherever it currently
	// sits — so any other component's key still strictly less than
	// component i's current key is inside the cover, even though the two
	// were never tied for the minimum at the same position. See
	// DESIGN.md's entry for this straddling-cover fix.
	open []bool

	current *tree.Entry
}

// New builds a MultiCursor over components, ordered from newest to
// oldest (component 0 is consulted first on a tie).
func New(mode Mode, components ...Component) *MultiCursor {
	return &MultiCursor{components: components, mode: mode, open: make([]bool, len(components))}
}

// rankLess and rankEqual order entries purely by tree.Compare (topic then
// key bytes): per entry.go's Compare doc, "two entries with the same key
// and different delete-range flags compare equal" — the tree keeps only
// one physical slot per user key, so any distinguishing has to happen
// across components, never within the comparator itself. §4.5.1's tie
// rule ("on equality... the payload of the older entry is preserved and
// the entry's effective flags are the union") depends on this: a newer
// component's pure StartDelete boundary and an older component's real
// INSERT at the identical key must tie so coalesce can combine them, not
// rank as two separate output positions.
func rankLess(a, b *tree.Entry) bool { return tree.Compare(a, b) < 0 }

func rankEqual(a, b *tree.Entry) bool { return tree.Compare(a, b) == 0 }

// updateOpenState folds component idx's just-consumed entry into its
// open-range tracking. Only an unadorned boundary (exactly StartDelete or
// exactly EndDelete, no payload bits) toggles the state — an entry that
// carries StartDelete and EndDelete together with an INSERT or
// POINT_DELETE (§3's "real key living inside a range-delete cover", or
// §4.5.1's fully-enclosed point-delete) is an interior marker, not a
// transition, and must not prematurely close the surrounding span.
func (m *MultiCursor) updateOpenState(idx int) {
	switch m.components[idx].Entry().Flags {
	case tree.StartDelete:
		m.open[idx] = true
	case tree.EndDelete:
		m.open[idx] = false
	}
}

// Next advances the merge by one output position, applying coalescing.
// It returns false once every component is exhausted or the current
// position was fully suppressed and no further position exists.
func (m *MultiCursor) Next() bool {
	for {
		winners := m.selectWinners()
		if len(winners) == 0 {
			m.current = nil
			return false
		}

		out, suppress := m.coalesce(winners)
		for _, idx := range winners {
			m.updateOpenState(idx)
			m.components[idx].Next()
		}
		if suppress {
			continue
		}
		m.current = out
		return true
	}
}

// selectWinners finds the indices of every component currently sitting
// on the minimum key (by rank), newest-first. A true implementation
// keeps a loser-tree tournament array so re-selection after advancing
// one leaf costs O(log k); here, with the modest number of concurrent
// components a single level's merge descriptor ever names, a linear
// rescan is simpler and produces an identical winner set and output
// order, so the asymptotic difference is not worth the extra structure.
func (m *MultiCursor) selectWinners() []int {
	var best *tree.Entry
	var winners []int
	for i, c := range m.components {
		if !c.Valid() {
			continue
		}
		e := c.Entry()
		switch {
		case best == nil, rankLess(e, best):
			best = e
			winners = []int{i}
		case rankEqual(e, best):
			winners = append(winners, i)
		}
	}
	return winners
}

// coalesce implements §4.5.1: collect the effective flags across every
// winning (i.e. newer-or-equal-rank) component at this position, plus
// every newer component currently straddling this position inside an
// still-open range-delete cover (see open/updateOpenState — a component
// need not be tied at the exact key to cover it: having passed a
// StartDelete and not yet reached its matching EndDelete means every key
// in between is covered, whether or not any entry of its own sits there).
// It keeps the newest INSERT/POINT_DELETE payload, unions the START/END
// bits, and suppresses a fully-enclosed point-delete; a fully-covered
// insert is suppressed only in ModeIgnoreDelete. In ModeIgnoreDelete, delete bits are cleared before the
// suppression check so a tied point-delete annihilates instead of
// surviving as an invisible marker.
func (m *MultiCursor) coalesce(winners []int) (*tree.Entry, bool) {
	newest := m.components[winners[0]].Entry()
	out := newest.Clone()

	var flags tree.Flags
	var payloadFlags tree.Flags
	havePayload := false
	payloadIdx := -1
	for _, idx := range winners {
		e := m.components[idx].Entry()
		flags |= e.Flags & (tree.StartDelete | tree.EndDelete)
		if !havePayload && (e.Flags.Has(tree.Insert) || e.Flags.Has(tree.PointDelete)) {
			payloadFlags = e.Flags & (tree.Insert | tree.PointDelete)
			out.Value = e.Value
			havePayload = true
			payloadIdx = idx
		}
	}

	// Fold in any newer component (lower index) that is straddling this
	// position with an open cover — an older level's open range must
	// never shadow a newer payload, so only components strictly newer
	// than whichever one supplied the payload are consulted.
	if havePayload {
		for idx := 0; idx < payloadIdx; idx++ {
			if m.open[idx] {
				flags |= tree.StartDelete | tree.EndDelete
			}
		}
	}
	out.Flags = flags | payloadFlags

	// A payload fully enclosed by a start/end cover — whether tied or
	// straddled in — is dead to a reader: §3's "real key living inside a
	// range-delete cover" (INSERT case) or §4.5.1 rule 3's fully-enclosed
	// point-delete. ModeFlush still carries the INSERT case forward
	// (a downstream merge or reader needs to keep seeing it as covered
	// until it is merged past the level that opened the cover); only the
	// point-delete combination is suppressed unconditionally, since it is
	// pure tombstone with nothing left worth carrying.
	enclosed := out.Flags&(tree.StartDelete|tree.EndDelete) == tree.StartDelete|tree.EndDelete &&
		out.Flags&(tree.Insert|tree.PointDelete) != 0

	if m.mode == ModeIgnoreDelete {
		out.Flags &^= tree.StartDelete | tree.EndDelete | tree.PointDelete
	}

	if out.Flags&(tree.StartDelete|tree.EndDelete|tree.PointDelete) == tree.StartDelete|tree.EndDelete|tree.PointDelete {
		return nil, true
	}
	if m.mode == ModeIgnoreDelete && (out.Flags&tree.Insert == 0 || enclosed) {
		return nil, true
	}
	return out, false
}

// Valid reports whether the merge currently sits on an output entry.
func (m *MultiCursor) Valid() bool { return m.current != nil }

// Entry returns the current merged output entry.
func (m *MultiCursor) Entry() *tree.Entry { return m.current }
