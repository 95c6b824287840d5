// Package concurrency implements the shared-memory-header side of §4.9:
// the 29-slot lock table, the dual checksummed tree-header copies reader
// handoff goes through, the reader-slot registry that computes the
// oldest shm chunk sequence id still pinned, and dead-writer repair.
//
// Locks here model the spec's advisory, non-blocking-by-default slots
// with a plain mutex-guarded table rather than a real cross-process
// shared-memory segment: a single Go process embedding this package
// holds every lock it needs in its own address space, and the table's
// job is purely to serialize goroutines the way the teacher's
// lock_manager.go serializes connections, not to mediate real
// inter-process shared memory (the spec treats that plumbing as part of
// the external OS environment, §6, out of scope here).
package concurrency

import (
	"sync"
	"time"
)

// Slot names one of the 29 lock slots: seven named locks, 6 READER slots
// and 16 RW-CLIENT slots.
type Slot int

const (
	DMS1 Slot = iota // serializes open/close
	DMS2             // held shared by every read-write connection
	DMS3             // held shared by every read-only connection
	WRITER
	WORKER
	CHECKPOINTER
	ROTRANS // RO-TRANS
	reader0
	reader5    = reader0 + 5
	rwclient0  = reader5 + 1
	rwclient15 = rwclient0 + 15
	numSlots   = rwclient15 + 1
)

// Reader and RWClient return the Nth reader/RW-client slot (0-based),
// matching the spec's 6 READER and 16 RW-CLIENT slots.
func Reader(n int) Slot   { return reader0 + Slot(n) }
func RWClient(n int) Slot { return rwclient0 + Slot(n) }

type slotState struct {
	shared    int
	exclusive bool
}

// LockTable is the 29-slot table. All operations are non-blocking except
// AcquireBlocking, reserved for DMS1 per §5 ("the primary in-process
// blocking point is waiting for DMS1 during opening and closing").
type LockTable struct {
	mu    sync.Mutex
	slots [numSlots]slotState
}

// NewLockTable returns an empty table with every slot free.
func NewLockTable() *LockTable {
	return &LockTable{}
}

// TryAcquire attempts to take slot SHARED or EXCLUSIVE, non-blocking.
// EXCL requires no SHARED holders and no existing EXCL holder; SHARED
// requires no existing EXCL holder.
func (lt *LockTable) TryAcquire(s Slot, exclusive bool) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	st := &lt.slots[s]
	if exclusive {
		if st.exclusive || st.shared > 0 {
			return false
		}
		st.exclusive = true
		return true
	}
	if st.exclusive {
		return false
	}
	st.shared++
	return true
}

// Release drops one hold of slot s. exclusive must match the flavor
// originally acquired.
func (lt *LockTable) Release(s Slot, exclusive bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	st := &lt.slots[s]
	if exclusive {
		st.exclusive = false
		return
	}
	if st.shared > 0 {
		st.shared--
	}
}

// Held reports whether slot s currently has any holder (shared or
// exclusive), used by RW-CLIENT slot occupancy checks that prove a live
// read-write client exists (prevents truncation, §4.9).
func (lt *LockTable) Held(s Slot) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	st := &lt.slots[s]
	return st.exclusive || st.shared > 0
}

// Sleeper abstracts the delay primitive DMS1's blocking retry uses, so
// tests can run the retry loop without real wall-clock delay
// (internal/memenv.Env implements this with a no-op sleep).
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealSleeper is the production Sleeper, backed by time.Sleep.
var RealSleeper Sleeper = realSleeper{}

// ErrBusy is returned by AcquireBlocking when all attempts are
// exhausted without acquiring the lock.
type errBusy struct{}

func (errBusy) Error() string { return "concurrency: BUSY" }

var ErrBusy error = errBusy{}

// AcquireBlocking retries TryAcquire(DMS1-style blocking slot) up to 10
// times with linearly increasing sleep capped at 100ms, per §7's
// transient-BUSY retry policy for DMS1 acquisition during open/close.
func (lt *LockTable) AcquireBlocking(s Slot, exclusive bool, sleeper Sleeper) error {
	if sleeper == nil {
		sleeper = RealSleeper
	}
	const maxAttempts = 10
	const capMillis = 100
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lt.TryAcquire(s, exclusive) {
			return nil
		}
		wait := attempt * 10
		if wait > capMillis {
			wait = capMillis
		}
		sleeper.Sleep(time.Duration(wait) * time.Millisecond)
	}
	return ErrBusy
}
