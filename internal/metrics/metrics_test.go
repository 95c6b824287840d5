package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	r.IncPagesWritten()
	r.IncPagesWritten()
	r.IncPagesRead()
	r.IncCompaction()
	r.IncChunkRecycle()

	snap := r.Snapshot()
	require.Equal(t, int64(2), snap.PagesWritten)
	require.Equal(t, int64(1), snap.PagesRead)
	require.Equal(t, int64(1), snap.CompactionsRun)
	require.Equal(t, int64(1), snap.ChunkRecycles)
}

func TestObserveLockWaitDoesNotPanicOnUnknownSlot(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	require.NotPanics(t, func() {
		r.ObserveLockWait("WORKER", 5*time.Millisecond)
		r.ObserveLockWait("CHECKPOINTER", 2*time.Millisecond)
		r.ObserveLockWait("WRITER", time.Millisecond)
	})
}
