package walog

import (
	"io"
	"os"

	"github.com/tidalstore/lsmtree/internal/errs"
)

// Replayer receives the committed mutations a Recover pass replays, in
// log order. internal/tree's Tree (via a thin adapter) satisfies this
// during database open.
type Replayer interface {
	ApplyWrite(key, value []byte) error
	ApplyDelete(key []byte) error
	ApplyDeleteRange(lo, hi []byte) error
}

// Recover reads the log file starting at startOffset (normally the
// checkpoint's recorded log offset) and replays every record belonging
// to a verified commit. It runs two passes, as the design requires: the
// first walks the raw record stream to find the end of the last
// verified commit (stopping at the first record that fails to decode or
// whose checksum doesn't match, since a torn write only ever damages the
// tail); the second re-walks only that verified prefix, applying WRITE/
// DELETE/DRANGE records to rp. It returns the offset immediately after
// the last replayed commit.
func Recover(f *os.File, startOffset int64, rp Replayer) (int64, error) {
	validEnd, err := scanValidPrefix(f, startOffset)
	if err != nil {
		return 0, err
	}
	if err := replay(f, startOffset, validEnd, rp); err != nil {
		return 0, err
	}
	return validEnd, nil
}

// scanValidPrefix is pass one: it returns the offset immediately after
// the last COMMIT record whose embedded checksum matches the running
// checksum computed over every byte from startOffset up to (but not
// including) that commit, and whose preceding *Cksum records (if any)
// also verified. A non-verifying commit, a non-verifying *Cksum record,
// or a decode failure ends the scan at the last good commit seen.
func scanValidPrefix(f *os.File, startOffset int64) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, errs.Wrap(errs.IOErr, err, "walog: stat")
	}
	size := info.Size()

	var running ChecksumState
	validEnd := startOffset
	off := startOffset

	for off < size {
		chunk, err := readAt(f, off, size)
		if err != nil {
			return 0, err
		}
		rec, next, derr := Decode(chunk, 0)
		if derr != nil {
			break // torn tail; stop at last verified commit
		}
		consumed := int64(next)

		switch rec.Kind {
		case KindEOF:
			off = size // nothing more to scan
			continue
		case KindJump:
			off = int64(rec.Cksum)
			continue
		case KindPad1, KindPad2:
			running.Absorb(chunk[:consumed])
			off += consumed
			continue
		case KindWriteCksum, KindDeleteCksum, KindDRangeCksum:
			if running.Finish() != rec.Cksum {
				return validEnd, nil
			}
			running.Absorb(chunk[:consumed])
			off += consumed
			continue
		case KindCommit:
			if running.Finish() != rec.Cksum {
				return validEnd, nil
			}
			running.Absorb(chunk[:consumed])
			off += consumed
			validEnd = off
			continue
		default: // WRITE, DELETE, DRANGE
			running.Absorb(chunk[:consumed])
			off += consumed
		}
	}
	return validEnd, nil
}

func replay(f *os.File, startOffset, validEnd int64, rp Replayer) error {
	off := startOffset
	for off < validEnd {
		chunk, err := readAt(f, off, validEnd)
		if err != nil {
			return err
		}
		rec, next, derr := Decode(chunk, 0)
		if derr != nil {
			return derr
		}
		switch rec.Kind {
		case KindWrite, KindWriteCksum:
			if err := rp.ApplyWrite(rec.Key, rec.Value); err != nil {
				return err
			}
		case KindDelete, KindDeleteCksum:
			if err := rp.ApplyDelete(rec.Key); err != nil {
				return err
			}
		case KindDRange, KindDRangeCksum:
			if err := rp.ApplyDeleteRange(rec.Key, rec.Hi); err != nil {
				return err
			}
		case KindJump:
			off = int64(rec.Cksum)
			continue
		}
		off += int64(next)
	}
	return nil
}

// readAt reads from off up to limit (clamped to a reasonable record's
// max size) so Decode has enough bytes to parse one record.
func readAt(f *os.File, off, limit int64) ([]byte, error) {
	const maxRecord = 1 << 20
	n := limit - off
	if n > maxRecord {
		n = maxRecord
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.IOErr, err, "walog: read")
	}
	return buf[:read], nil
}
