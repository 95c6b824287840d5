// Package checkpoint implements the snapshot format: a small,
// self-describing array of big-endian 32-bit words describing the tree
// headers, log position, append points, per-level segment layout, the
// block-redirection table, and the free list, closed off by a pair of
// checksum words. Two copies are kept (meta0/meta1); recovery picks
// whichever has the larger id and a verifying checksum.
package checkpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"

	"github.com/tidalstore/lsmtree/internal/errs"
)

// MaxWords is the hard ceiling on a snapshot's encoded int count (4096
// bytes / 4). Encode rejects a snapshot whose encoding would exceed it;
// no caller moves levels out of the blob into a system tree entry.
const MaxWords = 1024

// headerWords is the fixed-size leading header: id-high, id-low,
// total-int-count, compression-id, block-count, block-size, level-count,
// page-size, cumulative-page-writes.
const headerWords = 9

// SegmentRef describes one segment's placement: the pager record range
// it occupies and its live entry count. Root is kept for on-disk
// word-count compatibility with a design that indexes a segment via a
// separator B-tree; this implementation's segments are fully
// materialized runs (see internal/segment's package doc), so Root is
// always 0 here and ignored on decode.
type SegmentRef struct {
	First uint64
	Last  uint64
	Root  uint64
	Size  uint64
}

// InputCursor pins one merge input's current read position.
type InputCursor struct {
	Page uint64
	Cell uint32
}

// MergeState captures an in-progress merge for a level, so a crash
// mid-merge can resume instead of restarting it.
type MergeState struct {
	Inputs        []InputCursor
	SkipCount     uint32
	SplitKeyPage  uint64
	SplitKeyCell  uint32
	OutputPointer uint64
}

// LevelSnapshot is one level's on-disk layout: an age/flags word, the
// left segment, zero or more RHS segments, and an optional in-progress
// merge.
type LevelSnapshot struct {
	AgeFlags uint32
	Left     SegmentRef
	RHS      []SegmentRef
	Merge    *MergeState // nil when the level isn't merging
}

// Snapshot is the full decoded checkpoint.
type Snapshot struct {
	ID                   uint64
	CompressionID        uint32
	BlockCount           uint32
	BlockSize            uint32
	PageSize             uint32
	CumulativePageWrites uint32

	// LogOffset is the real byte offset into the write-ahead log of the
	// next record to apply on recovery. Toggle flips on every checkpoint
	// write purely so the on-disk word changes even when logging is
	// disabled (EncodeLogPointer/DecodeLogPointer do the shift).
	LogOffset uint64
	LogToggle bool
	LogCksum  [2]uint32

	AppendPoints [4]uint64

	Levels []LevelSnapshot

	BlockRedirects []BlockRedirect
	FreeList       []FreeListEntry
}

// BlockRedirect is one (from, to) block-move entry.
type BlockRedirect struct {
	From uint64
	To   uint64
}

// FreeListEntry is one free block and the chunk-sequence id that freed
// it. Encode writes it as four words (block-high, block-low, id-high,
// id-low), not as a three-word (block, id-high, id-low) triple.
type FreeListEntry struct {
	Block uint64
	ID    uint64
}

// EncodeLogPointer packs a real byte offset and toggle bit the way the
// on-disk format requires: (offset << 1) | toggle.
func EncodeLogPointer(offset uint64, toggle bool) uint64 {
	v := offset << 1
	if toggle {
		v |= 1
	}
	return v
}

// DecodeLogPointer is EncodeLogPointer's inverse.
func DecodeLogPointer(v uint64) (offset uint64, toggle bool) {
	return v >> 1, v&1 != 0
}

func hi32(v uint64) uint32 { return uint32(v >> 32) }
func lo32(v uint64) uint32 { return uint32(v) }
func join64(hi, lo uint32) uint64 { return uint64(hi)<<32 | uint64(lo) }

// Encode serializes s into a big-endian byte buffer, appending the two
// trailing checksum words. Returns errs.New(errs.Misuse, ...) if the
// encoding would overflow MaxWords; such a snapshot is not encoded at
// all.
func Encode(s *Snapshot) ([]byte, error) {
	words := make([]uint64, 0, 128)

	logOff := EncodeLogPointer(s.LogOffset, s.LogToggle)
	words = append(words,
		hi32u(s.ID), lo32u(s.ID), 0, /* total-int-count, patched below */
		uint64(s.CompressionID), uint64(s.BlockCount), uint64(s.BlockSize),
		uint64(len(s.Levels)), uint64(s.PageSize), uint64(s.CumulativePageWrites),
	)
	words = append(words, hi32u(logOff), lo32u(logOff), uint64(s.LogCksum[0]), uint64(s.LogCksum[1]))
	for _, ap := range s.AppendPoints {
		words = append(words, hi32u(ap), lo32u(ap))
	}

	for _, lvl := range s.Levels {
		words = append(words, uint64(lvl.AgeFlags), uint64(len(lvl.RHS)))
		appendSegmentRef(&words, lvl.Left)
		for _, rhs := range lvl.RHS {
			appendSegmentRef(&words, rhs)
		}
		if lvl.Merge == nil {
			words = append(words, 0) // input-count 0 signals "not merging"
			continue
		}
		m := lvl.Merge
		words = append(words, uint64(len(m.Inputs)), uint64(m.SkipCount))
		for _, in := range m.Inputs {
			words = append(words, hi32u(in.Page), lo32u(in.Page), uint64(in.Cell))
		}
		words = append(words, hi32u(m.SplitKeyPage), lo32u(m.SplitKeyPage), uint64(m.SplitKeyCell))
		words = append(words, hi32u(m.OutputPointer), lo32u(m.OutputPointer))
	}

	words = append(words, uint64(len(s.BlockRedirects)))
	for _, br := range s.BlockRedirects {
		words = append(words, hi32u(br.From), lo32u(br.From), hi32u(br.To), lo32u(br.To))
	}

	words = append(words, uint64(len(s.FreeList)))
	for _, fl := range s.FreeList {
		words = append(words, hi32u(fl.Block), lo32u(fl.Block), hi32u(fl.ID), lo32u(fl.ID))
	}

	if len(words)+2 > MaxWords {
		return nil, errs.New(errs.Misuse, fmt.Sprintf("checkpoint: %d ints exceeds %d-word ceiling", len(words)+2, MaxWords))
	}
	words[2] = uint64(len(words) + 2)

	buf := make([]byte, (len(words)+2)*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(w))
	}

	d := xxhash.Checksum64(buf[:len(words)*4])
	binary.BigEndian.PutUint32(buf[len(words)*4:], uint32(d>>32))
	binary.BigEndian.PutUint32(buf[len(words)*4+4:], uint32(d))
	return buf, nil
}

func hi32u(v uint64) uint64 { return uint64(hi32(v)) }
func lo32u(v uint64) uint64 { return uint64(lo32(v)) }

func appendSegmentRef(words *[]uint64, r SegmentRef) {
	*words = append(*words, hi32u(r.First), lo32u(r.First), hi32u(r.Last), lo32u(r.Last),
		hi32u(r.Root), lo32u(r.Root), hi32u(r.Size), lo32u(r.Size))
}

// Decode verifies buf's trailing checksum and parses it back into a
// Snapshot. Returns errs.New(errs.Corrupt, ...) on a checksum mismatch
// or a malformed word count.
func Decode(buf []byte) (*Snapshot, error) {
	if len(buf) < headerWords*4 {
		return nil, errs.New(errs.Corrupt, fmt.Sprintf("checkpoint: truncated buffer (%d bytes)", len(buf)))
	}
	// buf may be a whole, zero-padded page rather than exactly the
	// encoded byte count (Store writes fixed-size pages); the
	// total-int-count word at index 2 tells us the real extent.
	n := int(binary.BigEndian.Uint32(buf[2*4:]))
	if n < 2 || n*4 > len(buf) {
		return nil, errs.New(errs.Corrupt, "checkpoint: invalid total-int-count")
	}
	buf = buf[:n*4]
	payload := buf[:(n-2)*4]
	want := xxhash.Checksum64(payload)
	gotHi := binary.BigEndian.Uint32(buf[(n-2)*4:])
	gotLo := binary.BigEndian.Uint32(buf[(n-1)*4:])
	if uint32(want>>32) != gotHi || uint32(want) != gotLo {
		return nil, errs.New(errs.Corrupt, "checkpoint: checksum mismatch")
	}

	r := &reader{words: readWords(payload)}
	s := &Snapshot{}
	s.ID = join64(r.u32(), r.u32())
	totalInts := r.u32()
	if int(totalInts) != n {
		return nil, errs.New(errs.Corrupt, fmt.Sprintf("checkpoint: total-int-count %d does not match buffer", totalInts))
	}
	s.CompressionID = r.u32()
	s.BlockCount = r.u32()
	s.BlockSize = r.u32()
	levelCount := r.u32()
	s.PageSize = r.u32()
	s.CumulativePageWrites = r.u32()

	logOff := join64(r.u32(), r.u32())
	s.LogCksum[0] = r.u32()
	s.LogCksum[1] = r.u32()
	s.LogOffset, s.LogToggle = DecodeLogPointer(logOff)

	for i := range s.AppendPoints {
		s.AppendPoints[i] = join64(r.u32(), r.u32())
	}

	s.Levels = make([]LevelSnapshot, levelCount)
	for i := range s.Levels {
		lvl := &s.Levels[i]
		lvl.AgeFlags = r.u32()
		rhsCount := r.u32()
		lvl.Left = readSegmentRef(r)
		lvl.RHS = make([]SegmentRef, rhsCount)
		for j := range lvl.RHS {
			lvl.RHS[j] = readSegmentRef(r)
		}
		inputCount := r.u32()
		if inputCount == 0 {
			continue
		}
		m := &MergeState{SkipCount: r.u32()}
		m.Inputs = make([]InputCursor, inputCount)
		for j := range m.Inputs {
			m.Inputs[j] = InputCursor{Page: join64(r.u32(), r.u32()), Cell: r.u32()}
		}
		m.SplitKeyPage = join64(r.u32(), r.u32())
		m.SplitKeyCell = r.u32()
		m.OutputPointer = join64(r.u32(), r.u32())
		lvl.Merge = m
	}

	brCount := r.u32()
	s.BlockRedirects = make([]BlockRedirect, brCount)
	for i := range s.BlockRedirects {
		s.BlockRedirects[i] = BlockRedirect{From: join64(r.u32(), r.u32()), To: join64(r.u32(), r.u32())}
	}

	flCount := r.u32()
	s.FreeList = make([]FreeListEntry, flCount)
	for i := range s.FreeList {
		s.FreeList[i] = FreeListEntry{Block: join64(r.u32(), r.u32()), ID: join64(r.u32(), r.u32())}
	}

	if r.err != nil {
		return nil, r.err
	}
	return s, nil
}

func readSegmentRef(r *reader) SegmentRef {
	return SegmentRef{
		First: join64(r.u32(), r.u32()),
		Last:  join64(r.u32(), r.u32()),
		Root:  join64(r.u32(), r.u32()),
		Size:  join64(r.u32(), r.u32()),
	}
}

func readWords(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(buf[i*4:])
	}
	return out
}

// reader walks a flat []uint32 word stream, flagging corruption instead
// of panicking on an out-of-range read.
type reader struct {
	words []uint32
	pos   int
	err   error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.words) {
		r.err = errs.New(errs.Corrupt, "checkpoint: word stream exhausted")
		return 0
	}
	v := r.words[r.pos]
	r.pos++
	return v
}
