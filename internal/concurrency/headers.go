package concurrency

import (
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/tree"
)

// checksum hashes the header's fields (everything but the two checksum
// words themselves) with xxhash, the teacher's checksum library for
// every non-wire-format checksum (see SPEC_FULL.md §4.11) — the same
// xxhash.Checksum64 entry point internal/checkpoint uses for its own
// checksum words, truncated to 32 bits to match Header's Checksum1/2.
func checksum(h tree.Header) uint32 {
	buf := make([]byte, 0, 8*8+len(h.LogRegions)*16+4)
	buf = appendU64(buf, uint64(h.Root))
	buf = appendU64(buf, uint64(h.Height))
	buf = appendU64(buf, h.TotalBytes)
	buf = appendU64(buf, h.Txid)
	buf = appendU64(buf, h.FirstChunk)
	buf = appendU64(buf, h.NextChunk)
	buf = appendU64(buf, h.UsedChunk)
	buf = appendU64(buf, uint64(h.WriteOffset))
	for _, r := range h.LogRegions {
		buf = appendU64(buf, r.Start)
		buf = appendU64(buf, r.End)
	}
	buf = appendU64(buf, uint64(h.UserVersion))
	return uint32(xxhash.Checksum64(buf))
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	le64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func le64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// HeaderStore holds the two published copies of the tree header (hdr1,
// hdr2) described in §4.9/§3: a writer updates hdr2 first, issues a
// barrier, then copies to hdr1; a reader reads hdr1 first, falling back
// to hdr2 if hdr1's checksum fails.
type HeaderStore struct {
	mu   sync.RWMutex
	hdr1 tree.Header
	hdr2 tree.Header
	set  bool
}

// NewHeaderStore returns an empty store; Publish must be called before
// Read returns a usable header.
func NewHeaderStore() *HeaderStore {
	return &HeaderStore{}
}

// Publish writes h as the new published header: hdr2 is updated, a
// barrier is issued (Barrier, a no-op placeholder for the real
// cross-process memory fence §5's lsmShmBarrier names — a single Go
// process's lock-protected copy already establishes the happens-before
// edge the real barrier exists for), then hdr1 is updated to match.
func (hs *HeaderStore) Publish(h tree.Header) {
	h.Checksum1 = checksum(h)
	h.Checksum2 = h.Checksum1
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.hdr2 = h
	Barrier()
	hs.hdr1 = h
	hs.set = true
}

// Barrier is the in-process stand-in for lsmShmBarrier (§5): with a
// single mutex already serializing HeaderStore access there is no
// additional reordering to guard against, but the call site is kept so
// the publish sequence reads the same as the spec's two-copy protocol.
func Barrier() {}

// Read returns the most recently verified header. It prefers hdr1;
// if hdr1's checksum does not verify, it falls back to hdr2; if neither
// verifies, ok is false and the caller must treat the database as
// CORRUPT (§7) or, on first open, as empty.
func (hs *HeaderStore) Read() (h tree.Header, ok bool) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if !hs.set {
		return tree.Header{}, false
	}
	if verify(hs.hdr1) {
		return hs.hdr1, true
	}
	if verify(hs.hdr2) {
		return hs.hdr2, true
	}
	return tree.Header{}, false
}

func verify(h tree.Header) bool {
	return h.Checksum1 == checksum(h) && h.Checksum1 == h.Checksum2
}

// VerifyErr wraps Read for call sites that want an error instead of ok.
func (hs *HeaderStore) VerifyErr() (tree.Header, error) {
	h, ok := hs.Read()
	if !ok {
		return tree.Header{}, errs.New(errs.Corrupt, "concurrency: neither header copy verifies")
	}
	return h, nil
}
