package segment

import (
	"testing"

	"github.com/tidalstore/lsmtree/internal/tree"
)

type fakeStore struct {
	buf []byte
}

func (f *fakeStore) AppendRecord(raw []byte) (uint64, error) {
	off := uint64(len(f.buf))
	f.buf = append(f.buf, raw...)
	return off, nil
}

func (f *fakeStore) ReadRecord(off uint64) ([]byte, error) {
	return f.buf[off:], nil
}

func TestFlushLoadRoundTrip(t *testing.T) {
	seg := New(7, 2, []*tree.Entry{
		{Flags: tree.Insert, Key: []byte("a"), Value: []byte("1")},
		{Flags: tree.Insert, Key: []byte("b"), Value: []byte("2")},
		{Flags: tree.StartDelete | tree.EndDelete, Key: []byte("c")},
	})
	store := &fakeStore{}
	off, size, err := seg.Flush(store)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if off != 0 || size == 0 {
		t.Fatalf("unexpected offset/size %d/%d", off, size)
	}

	got, err := Load(store, 7, 2, off)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 3 || got.ID != 7 || got.Level != 2 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if string(got.Entries[0].Key) != "a" || string(got.Entries[1].Value) != "2" {
		t.Fatalf("entry mismatch: %+v", got.Entries)
	}
}
