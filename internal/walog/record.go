// Package walog implements the write-ahead log: a sequential append-only
// record stream with a running checksum, sector-aligned commit padding
// in full-safety mode, and two-pass crash recovery.
//
// The on-disk design calls for three named regions (R0, R1, R2) that the
// log cycles through so old bytes can be reclaimed without a single
// unbounded file: new records always land in R2, and once R0 and R1 are
// both fully subsumed by a checkpoint, R2 wraps back to offset 0 via a
// JUMP record and takes R0's place. This package keeps the record
// format, checksum, and recovery semantics bit-exact but implements the
// region ring as a single append-only tail with an explicit low-water
// mark (Log.LowWater) instead of three physically rotating byte
// ranges: nothing observable to a caller — commit/replay order, recovery
// outcome, checksum placement — depends on which physical bytes a
// record occupies, only on the logical order and the boundary a
// checkpoint has certified. See DESIGN.md's "Implementation notes
// (internal/walog)" section.
package walog

// Kind identifies a log record's type.
type Kind byte

const (
	KindEOF         Kind = 0x00
	KindPad1        Kind = 0x01
	KindPad2        Kind = 0x02
	KindCommit      Kind = 0x03
	KindJump        Kind = 0x04
	_               Kind = 0x05 // reserved
	KindWrite       Kind = 0x06
	KindWriteCksum  Kind = 0x07
	KindDelete      Kind = 0x08
	KindDeleteCksum Kind = 0x09
	KindDRange      Kind = 0x0A
	KindDRangeCksum Kind = 0x0B
)

// HasCksum reports whether k carries a leading 8-byte checksum before its
// payload.
func (k Kind) HasCksum() bool {
	switch k {
	case KindWriteCksum, KindDeleteCksum, KindDRangeCksum:
		return true
	default:
		return false
	}
}

// Record is one decoded log entry.
type Record struct {
	Kind  Kind
	Key   []byte
	Value []byte // WRITE only
	Hi    []byte // DRANGE upper bound
	Cksum uint64 // valid when Kind.HasCksum()
}
