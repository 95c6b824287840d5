package merge

import (
	"github.com/tidalstore/lsmtree/internal/segment"
	"github.com/tidalstore/lsmtree/internal/tree"
)

// Worker drives a MultiCursor and accumulates its output into a new
// segment, following the teacher's init/step/done lifecycle shape
// (transaction_manager.go's cursor lifecycle) rather than a single
// blocking call, so a caller can interleave Step with other work or stop
// early and still have a well-formed partial segment.
//
// This worker operates at the Segment abstraction of this package (a
// fully-materialized sorted run, see segment.go's package doc): it does
// not itself manage append points, block moves, or a separator B-tree
// hierarchy, since those exist in the byte-level design to let a large
// output segment page its leaves independently of the keys it indexes.
// The externally observable contract — entries come out newest-payload-
// first-merged and in ascending order, a pass can be paused and its
// progress inspected — is preserved; the paging bookkeeping collapses
// into internal/pager's record pipeline and internal/checkpoint's
// snapshot instead, not a worker-driven separator-B-tree hierarchy or
// block-move compaction tail. See DESIGN.md's "Segment and merge-worker
// scope" entry.
type Worker struct {
	mc      *MultiCursor
	level   int
	nextID  uint64
	out     []*tree.Entry
	stopped bool
}

// NewWorker creates a worker that will merge mc's components into one
// new segment at level, identified by id (normally the next unused
// segment id in the owning snapshot).
func NewWorker(mc *MultiCursor, level int, id uint64) *Worker {
	return &Worker{mc: mc, level: level, nextID: id}
}

// Step writes one output record and advances the merge, reporting
// whether a record was produced (false means the merge is exhausted).
func (w *Worker) Step() bool {
	if w.stopped {
		return false
	}
	if !w.mc.Next() {
		w.stopped = true
		return false
	}
	w.out = append(w.out, w.mc.Entry())
	return true
}

// Done reports whether the merge has consumed every input.
func (w *Worker) Done() bool { return w.stopped }

// Run drives Step to completion, a convenience for callers that don't
// need to interleave other work between steps.
func (w *Worker) Run() {
	for w.Step() {
	}
}

// Shutdown finalizes the accumulated output into a Segment. Called after
// Done reports true for a normal completion; a caller may also call it
// after a partial run to get a segment covering only what was merged so
// far; gobble-point bookkeeping (which input prefixes are now safe to
// reclaim) is the owning snapshot's responsibility once it adopts the
// returned segment in place of the inputs consumed.
func (w *Worker) Shutdown() *segment.Segment {
	return segment.New(w.nextID, w.level, w.out)
}
