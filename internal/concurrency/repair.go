package concurrency

import (
	"sync/atomic"

	"github.com/tidalstore/lsmtree/internal/arena"
	"github.com/tidalstore/lsmtree/internal/tree"
)

// WriterFlag is the shared-memory bWriter flag (§4.9): set while a
// writer holds the WRITER lock, left set if that writer dies without
// clearing it, and the signal that makes the next write transaction run
// Repair before proceeding.
type WriterFlag struct {
	v int32
}

func (f *WriterFlag) Set()          { atomic.StoreInt32(&f.v, 1) }
func (f *WriterFlag) Clear()        { atomic.StoreInt32(&f.v, 0) }
func (f *WriterFlag) IsSet() bool   { return atomic.LoadInt32(&f.v) != 0 }

// Repair runs the dead-writer recovery procedure: clear any tree v2
// stamp beyond the last verified header's txid (it was never published,
// so no reader could be relying on it), then rebuild the shm chunk
// ring by sequence id. Grounded on the teacher's mvcc.DeadlockDetector
// repair path being a standalone, separately invoked step rather than
// inline in begin().
func Repair(t *tree.Tree, a *arena.Arena, verified tree.Header) (overridesCleared int) {
	overridesCleared = t.RepairV2Overrides(verified.Txid)
	a.Repair()
	return overridesCleared
}
