package concurrency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalstore/lsmtree/internal/tree"
)

func TestPublishThenReadRoundTrips(t *testing.T) {
	hs := NewHeaderStore()
	h := tree.Header{Root: 5, Height: 2, Txid: 9}
	hs.Publish(h)

	got, ok := hs.Read()
	require.True(t, ok)
	require.Equal(t, h.Root, got.Root)
	require.Equal(t, h.Txid, got.Txid)
	require.NotZero(t, got.Checksum1)
}

func TestReadFailsBeforeFirstPublish(t *testing.T) {
	hs := NewHeaderStore()
	_, ok := hs.Read()
	require.False(t, ok)
}

func TestReadFallsBackToHdr2WhenHdr1Corrupt(t *testing.T) {
	hs := NewHeaderStore()
	hs.Publish(tree.Header{Root: 1, Txid: 1})
	hs.hdr1.Checksum1 ^= 0xFF // simulate a torn/corrupt hdr1 copy

	got, ok := hs.Read()
	require.True(t, ok)
	require.Equal(t, uint64(1), got.Txid)
}

func TestReadFailsWhenBothCorrupt(t *testing.T) {
	hs := NewHeaderStore()
	hs.Publish(tree.Header{Root: 1, Txid: 1})
	hs.hdr1.Checksum1 ^= 0xFF
	hs.hdr2.Checksum1 ^= 0xFF

	_, ok := hs.Read()
	require.False(t, ok)
}
