package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalstore/lsmtree/internal/segment"
	"github.com/tidalstore/lsmtree/internal/tree"
)

func seg(keys ...string) Component {
	entries := make([]*tree.Entry, len(keys))
	for i, k := range keys {
		entries[i] = &tree.Entry{Flags: tree.Insert, Key: []byte(k), Value: []byte(k)}
	}
	s := segment.New(0, 0, entries)
	c := segment.NewCursor(s)
	c.First()
	return c
}

func segFlagged(entries ...*tree.Entry) Component {
	s := segment.New(0, 0, entries)
	c := segment.NewCursor(s)
	c.First()
	return c
}

func collect(mc *MultiCursor) []string {
	var out []string
	for mc.Next() {
		out = append(out, string(mc.Entry().Key))
	}
	return out
}

func TestMergeOrdersDisjointSegments(t *testing.T) {
	mc := New(ModeFlush, seg("b", "d"), seg("a", "c", "e"))
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, collect(mc))
}

func TestMergeNewerWins(t *testing.T) {
	newer := segFlagged(&tree.Entry{Flags: tree.Insert, Key: []byte("k"), Value: []byte("new")})
	older := segFlagged(&tree.Entry{Flags: tree.Insert, Key: []byte("k"), Value: []byte("old")})
	mc := New(ModeFlush, newer, older)
	require.True(t, mc.Next())
	require.Equal(t, "new", string(mc.Entry().Value))
	require.False(t, mc.Next())
}

func TestMergePreservesOlderPayloadUnderSeparator(t *testing.T) {
	// Newer component has only a StartDelete boundary at "k" (no
	// INSERT/POINT_DELETE payload); the older component's insert of "k"
	// must survive with the union of flags.
	newer := segFlagged(&tree.Entry{Flags: tree.StartDelete, Key: []byte("k")})
	older := segFlagged(&tree.Entry{Flags: tree.Insert, Key: []byte("k"), Value: []byte("v")})
	mc := New(ModeFlush, newer, older)
	require.True(t, mc.Next())
	out := mc.Entry()
	require.Equal(t, "v", string(out.Value))
	require.True(t, out.Flags.Has(tree.Insert))
	require.True(t, out.Flags.Has(tree.StartDelete))
}

func TestMergeSuppressesFullyEnclosedPointDelete(t *testing.T) {
	// A single component already carrying a point-delete fully covered by
	// its own start/end boundaries (as a prior merge pass would produce)
	// must vanish entirely, leaving only the two boundary keys.
	inner := segFlagged(
		&tree.Entry{Flags: tree.StartDelete, Key: []byte("a")},
		&tree.Entry{Flags: tree.StartDelete | tree.EndDelete | tree.PointDelete, Key: []byte("b")},
		&tree.Entry{Flags: tree.EndDelete, Key: []byte("c")},
	)
	mc := New(ModeFlush, inner)
	require.Equal(t, []string{"a", "c"}, collect(mc))
}

// A newer component's open StartDelete...EndDelete span must shadow an
// older component's real key strictly between the two boundaries even
// though the older key is never tied at the same position as either
// boundary — the newer cursor jumps straight from "a" to "z" while the
// older cursor is still sitting on "m", so the two only ever compete at
// "z" vs "m", never at "m" itself.
func TestMergeStraddlingOpenRangeShadowsOlderKey(t *testing.T) {
	newer := segFlagged(
		&tree.Entry{Flags: tree.StartDelete, Key: []byte("a")},
		&tree.Entry{Flags: tree.EndDelete, Key: []byte("z")},
	)
	older := segFlagged(&tree.Entry{Flags: tree.Insert, Key: []byte("m"), Value: []byte("old")})

	ignore := New(ModeIgnoreDelete, newer, older)
	require.Empty(t, collect(ignore), "m is covered by the open a..z range and must not resurface")

	// The first merge exhausted both cursors; build fresh ones.
	newer = segFlagged(
		&tree.Entry{Flags: tree.StartDelete, Key: []byte("a")},
		&tree.Entry{Flags: tree.EndDelete, Key: []byte("z")},
	)
	older = segFlagged(&tree.Entry{Flags: tree.Insert, Key: []byte("m"), Value: []byte("old")})
	flush := New(ModeFlush, newer, older)
	require.True(t, flush.Next())
	require.Equal(t, "a", string(flush.Entry().Key))
	require.True(t, flush.Next())
	out := flush.Entry()
	require.Equal(t, "m", string(out.Key))
	require.Equal(t, "old", string(out.Value))
	require.True(t, out.Flags.Has(tree.Insert))
	require.True(t, out.Flags.Has(tree.StartDelete))
	require.True(t, out.Flags.Has(tree.EndDelete), "m carries forward as a real key living inside the cover, per §3")
	require.True(t, flush.Next())
	require.Equal(t, "z", string(flush.Entry().Key))
	require.False(t, flush.Next())
}

func TestIgnoreDeleteModeSkipsTombstones(t *testing.T) {
	entries := segFlagged(
		&tree.Entry{Flags: tree.Insert, Key: []byte("a"), Value: []byte("1")},
		&tree.Entry{Flags: tree.PointDelete, Key: []byte("b")},
		&tree.Entry{Flags: tree.Insert, Key: []byte("c"), Value: []byte("3")},
	)
	mc := New(ModeIgnoreDelete, entries)
	require.Equal(t, []string{"a", "c"}, collect(mc))
}
