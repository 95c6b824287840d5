// Package arena implements a shared-memory chunk ring: fixed-size chunks
// that back every tree node and key/value blob the in-memory tree holds,
// recycled by sequence id once no reader still needs them.
//
// Go has a garbage collector, so unlike a C allocator's manual free lists
// this arena does not itself hold node bytes — internal/tree keeps live
// node structs in a side table keyed by Handle. What the arena owns is
// the bookkeeping that still matters with a GC in the picture: chunk
// sequence ids, the first/write/used-sequence bounds, and the
// recycle-when-no-reader-needs-it decision. That keeps the ring's
// ordering and recycling invariants real and testable without
// re-implementing malloc.
package arena

import (
	"sync"

	"github.com/tidalstore/lsmtree/internal/errs"
)

// ChunkSize is the fixed shared-memory chunk size (32 KiB).
const ChunkSize = 32 * 1024

// Handle addresses a logical allocation as a tagged index: chunk index in
// the high bits, within-chunk byte offset in the low bits
// (chunk-index:17 | within-chunk-offset:15).
type Handle uint32

const (
	chunkIndexBits = 17
	offsetBits     = 15
	offsetMask     = 1<<offsetBits - 1
)

func makeHandle(chunkIdx uint32, offset uint32) Handle {
	return Handle(chunkIdx<<offsetBits | (offset & offsetMask))
}

// ChunkIndex returns the chunk component of h.
func (h Handle) ChunkIndex() uint32 { return uint32(h) >> offsetBits }

// Offset returns the within-chunk component of h.
func (h Handle) Offset() uint32 { return uint32(h) & offsetMask }

// Nil is the zero Handle, never returned by Alloc.
const Nil Handle = 0

type chunk struct {
	seq      uint64 // chunk-sequence-id, monotonically increasing
	next     uint32 // index of the next chunk in ring order
	writeOff uint32 // bump offset within this chunk; ChunkSize when full
	pinned   bool   // true while it is the current write chunk
}

// Arena is the single-writer/multi-reader shm chunk ring.
type Arena struct {
	mu sync.Mutex

	chunks   []*chunk // index 0 unused: chunk 0 is reserved for the shared header
	first    uint32   // iFirst: oldest live chunk index
	write    uint32   // index of the chunk currently being written to
	nextSeq  uint64   // iNextShmid: sequence id to assign to the next new chunk
	usedSeq  uint64   // iUsedShmid: floor published by readers; chunks <= this may recycle
	reserved uint32   // chunk 0 reserved for the shared header, never allocated from
}

// New creates an arena with a single live data chunk (index 1).
func New() *Arena {
	a := &Arena{
		chunks:   []*chunk{{}}, // index 0: placeholder for the header chunk
		reserved: 1,
	}
	a.chunks = append(a.chunks, &chunk{seq: 1, next: 1, pinned: true})
	a.first = 1
	a.write = 1
	a.nextSeq = 2
	a.usedSeq = 0
	return a
}

// Alloc reserves n bytes of logical space and returns a Handle identifying
// it. align8 requests that the whole allocation land in a single chunk
// (a contiguous allocation); when false, Alloc still returns a
// single-chunk allocation in this implementation (since node bytes are not
// physically packed — see package doc) but accounts for the request as if
// it could have spanned chunks, preserving the sequence-id bookkeeping a
// real spanning allocator would need.
func (a *Arena) Alloc(n uint32, align8 bool) (Handle, error) {
	if n > ChunkSize-8 {
		return Nil, errs.New(errs.Full, "allocation larger than one chunk")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.chunks[a.write]
	if ChunkSize-cur.writeOff < n {
		if err := a.rotate(); err != nil {
			return Nil, err
		}
		cur = a.chunks[a.write]
	}
	off := cur.writeOff
	cur.writeOff += n
	return makeHandle(a.write, off), nil
}

// rotate finalizes the current write chunk and either reclaims the oldest
// live chunk, if its sequence id is behind the reader floor, or appends a
// fresh one.
func (a *Arena) rotate() error {
	a.chunks[a.write].pinned = false

	oldest := a.chunks[a.first]
	if oldest.seq <= a.usedSeq && a.first != a.write {
		oldest.seq = a.nextSeq
		a.nextSeq++
		oldest.writeOff = 0
		oldest.pinned = true
		reclaimed := a.first
		a.first = a.chunks[a.first].next
		a.chunks[a.write].next = reclaimed
		a.chunks[reclaimed].next = reclaimed
		a.write = reclaimed
		return nil
	}

	nc := &chunk{seq: a.nextSeq, pinned: true}
	a.nextSeq++
	a.chunks = append(a.chunks, nc)
	newIdx := uint32(len(a.chunks) - 1)
	a.chunks[a.write].next = newIdx
	nc.next = newIdx
	a.write = newIdx
	return nil
}

// AdvanceUsedSeq publishes a new reader floor: chunks with sequence id at
// or below seq become eligible for recycling. Callers derive seq from the
// minimum sequence id across all registered reader slots
// (internal/concurrency.ReaderSlots).
func (a *Arena) AdvanceUsedSeq(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq > a.usedSeq {
		a.usedSeq = seq
	}
}

// FirstChunkSeq returns the sequence id of the oldest live chunk.
func (a *Arena) FirstChunkSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks[a.first].seq
}

// Walk returns the chunk sequence ids reachable from the oldest live
// chunk by following next pointers, in ring order.
func (a *Arena) Walk() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint64, 0, len(a.chunks)-1)
	idx := a.first
	for {
		out = append(out, a.chunks[idx].seq)
		if idx == a.write {
			break
		}
		idx = a.chunks[idx].next
	}
	return out
}

// NextSeq exposes iNextShmid for diagnostics (info() DB_STRUCTURE).
func (a *Arena) NextSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextSeq
}

// Repair rebuilds the chunk ring after a dead writer leaves it in an
// unknown state: it sorts all chunks by sequence id and relinks them in
// that order, recovering a consistent ring without trusting the
// possibly-torn next-pointer chain a crashed writer left behind.
func (a *Arena) Repair() {
	a.mu.Lock()
	defer a.mu.Unlock()

	type idxSeq struct {
		idx uint32
		seq uint64
	}
	order := make([]idxSeq, 0, len(a.chunks)-1)
	for i := 1; i < len(a.chunks); i++ {
		order = append(order, idxSeq{uint32(i), a.chunks[i].seq})
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j-1].seq > order[j].seq; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	for i, e := range order {
		if i+1 < len(order) {
			a.chunks[e.idx].next = order[i+1].idx
		} else {
			a.chunks[e.idx].next = e.idx
		}
	}
	a.first = order[0].idx
	a.write = order[len(order)-1].idx
	a.chunks[a.write].pinned = true
}
