package walog

import "encoding/binary"

// Checksum computes the log's 64-bit (s0, s1) checksum over data in one
// shot, fed as little-endian 32-bit words with zero-padding to a
// multiple of 8 bytes for the final tail: s0 += x[i] + s1; s1 += x[i+1]
// + s0. The result packs as s0<<32 | s1.
func Checksum(data []byte) uint64 {
	var st ChecksumState
	st.Absorb(data)
	return st.Finish()
}

// ChecksumState is Checksum's incremental form: the log appends bytes a
// record at a time, rarely a multiple of 8, so the state carries any
// trailing partial word across Absorb calls. Absorbing the same bytes in
// smaller pieces produces exactly the same running value as one
// Checksum(data) call over the concatenation — the tail padding rule
// only applies at Finish.
type ChecksumState struct {
	s0, s1  uint32
	pending []byte
}

// Absorb feeds more log bytes into the running checksum.
func (c *ChecksumState) Absorb(data []byte) {
	buf := append(c.pending, data...)
	n := len(buf)
	full := n - n%8
	for i := 0; i < full; i += 8 {
		x0 := binary.LittleEndian.Uint32(buf[i:])
		x1 := binary.LittleEndian.Uint32(buf[i+4:])
		c.s0 += x0 + c.s1
		c.s1 += x1 + c.s0
	}
	if full == n {
		c.pending = nil
	} else {
		c.pending = append([]byte(nil), buf[full:]...)
	}
}

// Finish returns the checksum as of everything absorbed so far, zero-
// padding any trailing partial word, without mutating the state (more
// bytes can still be absorbed afterward).
func (c *ChecksumState) Finish() uint64 {
	s0, s1 := c.s0, c.s1
	if len(c.pending) > 0 {
		var tail [8]byte
		copy(tail[:], c.pending)
		x0 := binary.LittleEndian.Uint32(tail[:4])
		x1 := binary.LittleEndian.Uint32(tail[4:])
		s0 += x0 + s1
		s1 += x1 + s0
	}
	return uint64(s0)<<32 | uint64(s1)
}
