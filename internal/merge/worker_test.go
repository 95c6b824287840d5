package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerBuildsSegmentFromMerge(t *testing.T) {
	w := NewWorker(New(ModeFlush, seg("b", "d"), seg("a", "c", "e")), 1, 7)
	require.True(t, w.Step())
	require.False(t, w.Done())
	w.Run()
	require.True(t, w.Done())

	out := w.Shutdown()
	require.EqualValues(t, 7, out.ID)
	require.EqualValues(t, 1, out.Level)
	require.Equal(t, 5, out.Len())
	require.Equal(t, "a", string(out.MinKey()))
	require.Equal(t, "e", string(out.MaxKey()))
}

func TestWorkerStepFalseOnEmptyInput(t *testing.T) {
	w := NewWorker(New(ModeFlush), 0, 1)
	require.False(t, w.Step())
	require.True(t, w.Done())
	require.Equal(t, 0, w.Shutdown().Len())
}
