package segment

import (
	"encoding/binary"

	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/tree"
)

// encode serializes a segment's entries as one pager record: an entry
// count followed by (flags, keylen, vallen, key, value) per entry, in
// the ascending order the merge worker produced them. This stands in
// for the teacher's page-at-a-time segment layout (see package doc):
// internal/pager's compressed record pipeline already owns framing and
// compression, so a segment's payload here is the flat entry list that
// pipeline frames, not a second paged structure.
func encode(entries []*tree.Entry) []byte {
	buf := make([]byte, 0, 64*len(entries))
	buf = appendUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = append(buf, byte(e.Flags))
		buf = appendUvarint(buf, uint64(len(e.Key)))
		buf = appendUvarint(buf, uint64(len(e.Value)))
		buf = append(buf, e.Key...)
		buf = append(buf, e.Value...)
	}
	return buf
}

func decode(buf []byte) ([]*tree.Entry, error) {
	pos := 0
	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return 0, errs.New(errs.Corrupt, "segment: bad varint")
		}
		pos += n
		return v, nil
	}
	n, err := readUvarint()
	if err != nil {
		return nil, err
	}
	entries := make([]*tree.Entry, 0, n)
	for i := uint64(0); i < n; i++ {
		if pos >= len(buf) {
			return nil, errs.New(errs.Corrupt, "segment: truncated entry")
		}
		flags := tree.Flags(buf[pos])
		pos++
		klen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		vlen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if pos+int(klen)+int(vlen) > len(buf) {
			return nil, errs.New(errs.Corrupt, "segment: truncated payload")
		}
		key := append([]byte(nil), buf[pos:pos+int(klen)]...)
		pos += int(klen)
		var val []byte
		if vlen > 0 {
			val = append([]byte(nil), buf[pos:pos+int(vlen)]...)
			pos += int(vlen)
		}
		entries = append(entries, &tree.Entry{Flags: flags, Key: key, Value: val})
	}
	return entries, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Store is the narrow interface Flush/Load need from internal/pager, kept
// separate so segment tests can fake it without opening a real file.
type Store interface {
	AppendRecord(raw []byte) (uint64, error)
	ReadRecord(off uint64) ([]byte, error)
}

// Flush appends s's entries to store as one record and returns the
// (offset, byteLength) pair a checkpoint's SegmentRef persists as
// First/Size.
func (s *Segment) Flush(store Store) (offset uint64, size uint64, err error) {
	raw := encode(s.Entries)
	off, err := store.AppendRecord(raw)
	if err != nil {
		return 0, 0, err
	}
	return off, uint64(len(raw)), nil
}

// Load reconstructs a Segment from the record store wrote it to at
// offset, as recorded in a checkpoint's SegmentRef.
func Load(store Store, id uint64, level int, offset uint64) (*Segment, error) {
	raw, err := store.ReadRecord(offset)
	if err != nil {
		return nil, err
	}
	entries, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return New(id, level, entries), nil
}
