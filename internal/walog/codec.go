package walog

import (
	"encoding/binary"

	"github.com/tidalstore/lsmtree/internal/errs"
)

// Encode appends r's wire representation to buf and returns the result.
func Encode(buf []byte, r Record) []byte {
	buf = append(buf, byte(r.Kind))
	switch r.Kind {
	case KindEOF:
		// no payload
	case KindPad1:
		// no payload; the kind byte alone is one byte of padding
	case KindPad2:
		buf = appendUvarint(buf, uint64(len(r.Value)))
		buf = append(buf, r.Value...)
	case KindCommit:
		buf = appendUint64(buf, r.Cksum)
	case KindJump:
		buf = appendUvarint(buf, r.Cksum) // absolute offset carried in Cksum
	case KindWrite, KindWriteCksum:
		if r.Kind == KindWriteCksum {
			buf = appendUint64(buf, r.Cksum)
		}
		buf = appendUvarint(buf, uint64(len(r.Key)))
		buf = appendUvarint(buf, uint64(len(r.Value)))
		buf = append(buf, r.Key...)
		buf = append(buf, r.Value...)
	case KindDelete, KindDeleteCksum:
		if r.Kind == KindDeleteCksum {
			buf = appendUint64(buf, r.Cksum)
		}
		buf = appendUvarint(buf, uint64(len(r.Key)))
		buf = append(buf, r.Key...)
	case KindDRange, KindDRangeCksum:
		if r.Kind == KindDRangeCksum {
			buf = appendUint64(buf, r.Cksum)
		}
		buf = appendUvarint(buf, uint64(len(r.Key)))
		buf = appendUvarint(buf, uint64(len(r.Hi)))
		buf = append(buf, r.Key...)
		buf = append(buf, r.Hi...)
	}
	return buf
}

// Decode parses one record starting at buf[off], returning the record
// and the offset immediately following it.
func Decode(buf []byte, off int) (Record, int, error) {
	if off >= len(buf) {
		return Record{}, off, errs.New(errs.Corrupt, "walog: truncated record header")
	}
	kind := Kind(buf[off])
	pos := off + 1
	var r Record
	r.Kind = kind

	readUint64 := func() (uint64, error) {
		if pos+8 > len(buf) {
			return 0, errs.New(errs.Corrupt, "walog: truncated checksum")
		}
		v := binary.BigEndian.Uint64(buf[pos:])
		pos += 8
		return v, nil
	}
	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return 0, errs.New(errs.Corrupt, "walog: bad varint")
		}
		pos += n
		return v, nil
	}
	readBytes := func(n uint64) ([]byte, error) {
		if pos+int(n) > len(buf) {
			return nil, errs.New(errs.Corrupt, "walog: truncated payload")
		}
		b := buf[pos : pos+int(n)]
		pos += int(n)
		return b, nil
	}

	switch kind {
	case KindEOF, KindPad1:
		// no payload
	case KindPad2:
		n, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		b, err := readBytes(n)
		if err != nil {
			return r, off, err
		}
		r.Value = b
	case KindCommit:
		v, err := readUint64()
		if err != nil {
			return r, off, err
		}
		r.Cksum = v
	case KindJump:
		v, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		r.Cksum = v
	case KindWrite, KindWriteCksum:
		if kind == KindWriteCksum {
			v, err := readUint64()
			if err != nil {
				return r, off, err
			}
			r.Cksum = v
		}
		klen, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		vlen, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		key, err := readBytes(klen)
		if err != nil {
			return r, off, err
		}
		val, err := readBytes(vlen)
		if err != nil {
			return r, off, err
		}
		r.Key, r.Value = key, val
	case KindDelete, KindDeleteCksum:
		if kind == KindDeleteCksum {
			v, err := readUint64()
			if err != nil {
				return r, off, err
			}
			r.Cksum = v
		}
		klen, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		key, err := readBytes(klen)
		if err != nil {
			return r, off, err
		}
		r.Key = key
	case KindDRange, KindDRangeCksum:
		if kind == KindDRangeCksum {
			v, err := readUint64()
			if err != nil {
				return r, off, err
			}
			r.Cksum = v
		}
		klen, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		hlen, err := readUvarint()
		if err != nil {
			return r, off, err
		}
		key, err := readBytes(klen)
		if err != nil {
			return r, off, err
		}
		hi, err := readBytes(hlen)
		if err != nil {
			return r, off, err
		}
		r.Key, r.Hi = key, hi
	default:
		return r, off, errs.New(errs.Corrupt, "walog: unknown record kind")
	}
	return r, pos, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
