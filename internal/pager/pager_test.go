package pager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalstore/lsmtree/internal/compress"
)

func newTestPager(t *testing.T, compressed bool) *Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "data.db"), 512, 4096, compressed, compress.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestReadWritePageRoundTrip(t *testing.T) {
	p := newTestPager(t, false)
	data := make([]byte, 512)
	copy(data, []byte("hello page"))

	require.NoError(t, p.WritePage(3, data))
	page, err := p.ReadPage(3)
	require.NoError(t, err)
	require.Equal(t, data, page.Data)
}

func TestCacheServesRepeatedReadsWithoutRefetch(t *testing.T) {
	p := newTestPager(t, false)
	data := make([]byte, 512)
	require.NoError(t, p.WritePage(1, data))

	_, err := p.ReadPage(1)
	require.NoError(t, err)
	_, err = p.ReadPage(1)
	require.NoError(t, err)

	stats := p.CacheStats()
	require.GreaterOrEqual(t, stats.Hits, uint64(1))
}

func TestBlockPointers(t *testing.T) {
	p := newTestPager(t, false)
	require.NoError(t, p.file.WriteNextBlockPointer(0, 77))
	next, err := p.file.NextBlockPointer(0)
	require.NoError(t, err)
	require.Equal(t, uint64(77), next)

	require.NoError(t, p.file.WritePrevBlockPointer(8, 3))
	prev, err := p.file.PrevBlockPointer(8)
	require.NoError(t, err)
	require.Equal(t, uint64(3), prev)
}

func TestAppendRecordRoundTripUncompressed(t *testing.T) {
	p := newTestPager(t, false)
	payload := []byte("a variable length record that spans more than one page easily")

	off, err := p.AppendRecord(payload)
	require.NoError(t, err)
	got, err := p.ReadRecord(off)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestAppendRecordRoundTripCompressed(t *testing.T) {
	p := newTestPager(t, true)
	require.NoError(t, p.compress.SetActive(compress.IDSnappy))
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	off, err := p.AppendRecord(payload)
	require.NoError(t, err)
	got, err := p.ReadRecord(off)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadRecordDetectsCorruptSizeHeader(t *testing.T) {
	p := newTestPager(t, false)
	off, err := p.AppendRecord([]byte("abc"))
	require.NoError(t, err)

	page, err := p.ReadPage(off / uint64(p.file.PageSize()))
	require.NoError(t, err)
	corrupt := append([]byte(nil), page.Data...)
	corrupt[0] ^= 0xFF // flip the leading size header, leave the trailer intact
	require.NoError(t, p.WritePage(0, corrupt))

	_, err = p.ReadRecord(off)
	require.Error(t, err)
}
