package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripEachCodec(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 200)

	for _, id := range []uint8{IDNone, IDSnappy, IDLZ4} {
		r := NewRegistry()
		require.NoError(t, r.SetActive(id))

		framed, err := r.CompressPage(data)
		require.NoError(t, err)

		out, err := r.DecompressPage(framed)
		require.NoError(t, err)
		require.Equal(t, data, out)
	}
}

func TestMinSavingsFallsBackToNone(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SetActive(IDSnappy))
	r.SetMinSavings(0.99) // unreachable bar for this input

	data := []byte("short")
	framed, err := r.CompressPage(data)
	require.NoError(t, err)

	id, _, _, err := unframe(framed)
	require.NoError(t, err)
	require.Equal(t, IDNone, id)

	out, err := r.DecompressPage(framed)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestDecompressUsesFramedCodecNotActiveSetting(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SetActive(IDLZ4))
	data := bytes.Repeat([]byte("abc"), 500)
	framed, err := r.CompressPage(data)
	require.NoError(t, err)

	// Switching the active codec afterward must not affect decoding of
	// pages already written under the previous one.
	require.NoError(t, r.SetActive(IDSnappy))
	out, err := r.DecompressPage(framed)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestUnknownCodecIDRejected(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.SetActive(99))
}

func TestStatsAccumulate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SetActive(IDSnappy))
	data := bytes.Repeat([]byte("compressible compressible compressible"), 100)

	_, err := r.CompressPage(data)
	require.NoError(t, err)

	stats := r.Stats()
	require.Equal(t, uint64(1), stats.TotalPages)
	require.Greater(t, stats.TotalSize, uint64(0))
}
