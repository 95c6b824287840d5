package concurrency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalstore/lsmtree/internal/arena"
	"github.com/tidalstore/lsmtree/internal/tree"
)

func TestWriterFlagSetClear(t *testing.T) {
	var f WriterFlag
	require.False(t, f.IsSet())
	f.Set()
	require.True(t, f.IsSet())
	f.Clear()
	require.False(t, f.IsSet())
}

func TestRepairClearsOverridesBeyondVerifiedTxid(t *testing.T) {
	a := arena.New()
	tr := tree.New(a)
	require.NoError(t, tr.Insert(&tree.Entry{Flags: tree.Insert, Key: []byte("a"), Value: []byte("1")}))
	verified := tr.Header()

	tr.BeginWrite()
	require.NoError(t, tr.Insert(&tree.Entry{Flags: tree.Insert, Key: []byte("b"), Value: []byte("2")}))

	cleared := Repair(tr, a, verified)
	require.GreaterOrEqual(t, cleared, 0)

	_, ok := tr.Get([]byte("a"), ^uint64(0))
	require.True(t, ok)
}
