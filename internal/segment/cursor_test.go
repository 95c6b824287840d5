package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalstore/lsmtree/internal/tree"
)

func entry(k string) *tree.Entry {
	return &tree.Entry{Flags: tree.Insert, Key: []byte(k), Value: []byte(k)}
}

func newTestSegment(keys ...string) *Segment {
	entries := make([]*tree.Entry, len(keys))
	for i, k := range keys {
		entries[i] = entry(k)
	}
	return New(1, 0, entries)
}

func TestSeekEQFindsExactMatch(t *testing.T) {
	seg := newTestSegment("a", "c", "e", "g")
	c := NewCursor(seg)
	require.True(t, c.Seek(EQ, []byte("e")))
	require.Equal(t, "e", string(c.Key()))
}

func TestSeekEQMissInvalidatesCursor(t *testing.T) {
	seg := newTestSegment("a", "c", "e")
	c := NewCursor(seg)
	require.False(t, c.Seek(EQ, []byte("b")))
	require.False(t, c.Valid())
}

func TestSeekGEFindsSmallestAboveOrEqual(t *testing.T) {
	seg := newTestSegment("a", "c", "e", "g")
	c := NewCursor(seg)
	require.True(t, c.Seek(GE, []byte("b")))
	require.Equal(t, "c", string(c.Key()))
}

func TestSeekLEFindsLargestBelowOrEqual(t *testing.T) {
	seg := newTestSegment("a", "c", "e", "g")
	c := NewCursor(seg)
	require.True(t, c.Seek(LE, []byte("f")))
	require.Equal(t, "e", string(c.Key()))
}

func TestSeekGEPastEndInvalidates(t *testing.T) {
	seg := newTestSegment("a", "c")
	c := NewCursor(seg)
	require.False(t, c.Seek(GE, []byte("z")))
	require.False(t, c.Valid())
}

func TestSeekLEBeforeStartInvalidates(t *testing.T) {
	seg := newTestSegment("c", "e")
	c := NewCursor(seg)
	require.False(t, c.Seek(LE, []byte("a")))
	require.False(t, c.Valid())
}

func TestNextPrevWalkWholeSegment(t *testing.T) {
	seg := newTestSegment("a", "b", "c")
	c := NewCursor(seg)
	require.True(t, c.First())
	var forward []string
	for {
		forward = append(forward, string(c.Key()))
		if !c.Next() {
			break
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, forward)

	require.True(t, c.Last())
	var backward []string
	for {
		backward = append(backward, string(c.Key()))
		if !c.Prev() {
			break
		}
	}
	require.Equal(t, []string{"c", "b", "a"}, backward)
}
