package concurrency

import "sync"

const numReaderSlots = 6

// ReaderRegistration is one reader-slot entry: the snapshot id the
// reader is pinned to and the shm chunk sequence id it observed at
// BeginRead, per §4.9.
type ReaderRegistration struct {
	SnapshotID uint64
	ShmSeq     uint64
}

// ReaderSlots tracks the 6 reader slots a read transaction registers
// into while holding that slot SHARED, letting a worker compute the
// oldest snapshot/chunk still in use and therefore safe-to-recycle
// bounds (arena.Arena.AdvanceUsedSeq's input).
type ReaderSlots struct {
	mu    sync.Mutex
	lt    *LockTable
	slots [numReaderSlots]*ReaderRegistration
}

// NewReaderSlots returns an empty registry backed by lt's Reader(0..5)
// slots.
func NewReaderSlots(lt *LockTable) *ReaderSlots {
	return &ReaderSlots{lt: lt}
}

// Register finds a free reader slot, takes it SHARED, and records reg.
// It reports errBusy if all 6 slots are occupied.
func (rs *ReaderSlots) Register(reg ReaderRegistration) (slot int, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := 0; i < numReaderSlots; i++ {
		if rs.slots[i] == nil {
			if !rs.lt.TryAcquire(Reader(i), false) {
				continue
			}
			r := reg
			rs.slots[i] = &r
			return i, nil
		}
	}
	return -1, ErrBusy
}

// Unregister releases slot i, previously returned by Register.
func (rs *ReaderSlots) Unregister(slot int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if slot < 0 || slot >= numReaderSlots || rs.slots[slot] == nil {
		return
	}
	rs.lt.Release(Reader(slot), false)
	rs.slots[slot] = nil
}

// OldestShmSeq returns the minimum ShmSeq across every occupied slot, or
// (0, false) if no reader is registered — in which case every chunk
// behind the writer's own floor is recyclable.
func (rs *ReaderSlots) OldestShmSeq() (seq uint64, any bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, s := range rs.slots {
		if s == nil {
			continue
		}
		if !any || s.ShmSeq < seq {
			seq = s.ShmSeq
			any = true
		}
	}
	return seq, any
}

// OldestSnapshotID is OldestShmSeq's snapshot-id analogue, used by the
// worker to decide which segment/block generations are still pinned by
// some reader (§3 "any number of reader connections may pin older
// snapshot ids").
func (rs *ReaderSlots) OldestSnapshotID() (id uint64, any bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, s := range rs.slots {
		if s == nil {
			continue
		}
		if !any || s.SnapshotID < id {
			id = s.SnapshotID
			any = true
		}
	}
	return id, any
}
