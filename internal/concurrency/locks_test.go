package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSleeper struct{ slept []time.Duration }

func (f *fakeSleeper) Sleep(d time.Duration) { f.slept = append(f.slept, d) }

func TestExclusiveExcludesShared(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire(WRITER, true))
	require.False(t, lt.TryAcquire(WRITER, false))
	lt.Release(WRITER, true)
	require.True(t, lt.TryAcquire(WRITER, false))
}

func TestSharedAllowsMultipleHolders(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire(DMS2, false))
	require.True(t, lt.TryAcquire(DMS2, false))
	require.False(t, lt.TryAcquire(DMS2, true))
}

func TestReaderAndRWClientSlotsAreDistinct(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire(Reader(0), false))
	require.True(t, lt.TryAcquire(Reader(5), false))
	require.True(t, lt.TryAcquire(RWClient(0), false))
	require.True(t, lt.TryAcquire(RWClient(15), false))
}

func TestAcquireBlockingSucceedsWhenFree(t *testing.T) {
	lt := NewLockTable()
	sleeper := &fakeSleeper{}
	err := lt.AcquireBlocking(DMS1, true, sleeper)
	require.NoError(t, err)
	require.Empty(t, sleeper.slept)
}

func TestAcquireBlockingExhaustsAndReturnsBusy(t *testing.T) {
	lt := NewLockTable()
	require.True(t, lt.TryAcquire(DMS1, true))
	sleeper := &fakeSleeper{}
	err := lt.AcquireBlocking(DMS1, true, sleeper)
	require.ErrorIs(t, err, ErrBusy)
	require.Len(t, sleeper.slept, 10)
	require.Equal(t, 100*time.Millisecond, sleeper.slept[len(sleeper.slept)-1])
}
