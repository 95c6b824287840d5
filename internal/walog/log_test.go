package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReplayer struct {
	writes  map[string]string
	deletes []string
	ranges  [][2]string
}

func newFakeReplayer() *fakeReplayer {
	return &fakeReplayer{writes: map[string]string{}}
}

func (f *fakeReplayer) ApplyWrite(key, value []byte) error {
	f.writes[string(key)] = string(value)
	return nil
}

func (f *fakeReplayer) ApplyDelete(key []byte) error {
	f.deletes = append(f.deletes, string(key))
	return nil
}

func (f *fakeReplayer) ApplyDeleteRange(lo, hi []byte) error {
	f.ranges = append(f.ranges, [2]string{string(lo), string(hi)})
	return nil
}

func TestAppendCommitRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	l, err := Open(path, SafetyNormal)
	require.NoError(t, err)
	_, err = l.AppendWrite([]byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = l.AppendWrite([]byte("b"), []byte("2"))
	require.NoError(t, err)
	_, err = l.AppendDelete([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, l.Commit())
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rp := newFakeReplayer()
	end, err := Recover(f, 0, rp)
	require.NoError(t, err)
	require.Greater(t, end, int64(0))
	require.Equal(t, "1", rp.writes["a"])
	require.Equal(t, "2", rp.writes["b"])
	require.Equal(t, []string{"a"}, rp.deletes)
}

func TestRecoveryStopsBeforeUncommittedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	l, err := Open(path, SafetyNormal)
	require.NoError(t, err)
	_, err = l.AppendWrite([]byte("committed"), []byte("yes"))
	require.NoError(t, err)
	require.NoError(t, l.Commit())

	// Uncommitted tail: no following COMMIT record.
	_, err = l.AppendWrite([]byte("uncommitted"), []byte("no"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rp := newFakeReplayer()
	_, err = Recover(f, 0, rp)
	require.NoError(t, err)
	require.Equal(t, "yes", rp.writes["committed"])
	_, sawUncommitted := rp.writes["uncommitted"]
	require.False(t, sawUncommitted)
}

func TestRecoveryStopsAtCorruptedCommitChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	l, err := Open(path, SafetyNormal)
	require.NoError(t, err)
	_, err = l.AppendWrite([]byte("first"), []byte("ok"))
	require.NoError(t, err)
	require.NoError(t, l.Commit())
	firstEnd := l.Tail()

	_, err = l.AppendWrite([]byte("second"), []byte("also-ok"))
	require.NoError(t, err)
	require.NoError(t, l.Commit())
	require.NoError(t, l.Close())

	// Flip a byte inside the second transaction's body; its commit
	// checksum won't match on replay and the scan must stop before it.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, firstEnd+3)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, firstEnd+3)
	require.NoError(t, err)

	rp := newFakeReplayer()
	end, err := Recover(f, 0, rp)
	require.NoError(t, err)
	require.Equal(t, firstEnd, end)
	require.Equal(t, "ok", rp.writes["first"])
	_, sawSecond := rp.writes["second"]
	require.False(t, sawSecond)
	require.NoError(t, f.Close())
}

func TestSafetyFullPadsCommitToSectorBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	l, err := Open(path, SafetyFull)
	require.NoError(t, err)
	_, err = l.AppendWrite([]byte("x"), []byte("y"))
	require.NoError(t, err)
	require.NoError(t, l.Commit())
	require.Zero(t, l.Tail()%sectorSize)
	require.NoError(t, l.Close())
}
