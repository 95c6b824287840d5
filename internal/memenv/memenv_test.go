package memenv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSleepRecordsWithoutBlocking(t *testing.T) {
	e := New()
	start := time.Now()
	e.Sleep(5 * time.Second)
	e.Sleep(10 * time.Millisecond)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, []time.Duration{5 * time.Second, 10 * time.Millisecond}, e.Delays)
}

func TestFileIDIsUniquePerCall(t *testing.T) {
	e := New()
	a, err := e.FileID("/db/data")
	require.NoError(t, err)
	b, err := e.FileID("/db/data")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
