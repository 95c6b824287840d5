// Package lsm is the public handle API (§6): the single entry point an
// embedding program uses to open a database, run transactions, drive
// cursors and trigger work/flush/checkpoint, without reaching into any
// internal/* package directly. It plays the role the teacher's top-level
// engine handle (server/innodb's package, orchestrated through
// manager.StorageManager as a facade over buffer pool/B+tree/log/lock
// managers) plays for a MySQL-compatible server, generalized to this
// module's embedded LSM engine.
package lsm

import (
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tidalstore/lsmtree/internal/arena"
	"github.com/tidalstore/lsmtree/internal/checkpoint"
	"github.com/tidalstore/lsmtree/internal/compress"
	"github.com/tidalstore/lsmtree/internal/concurrency"
	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/metrics"
	"github.com/tidalstore/lsmtree/internal/pager"
	"github.com/tidalstore/lsmtree/internal/segment"
	"github.com/tidalstore/lsmtree/internal/tree"
	"github.com/tidalstore/lsmtree/internal/walog"
	"github.com/tidalstore/lsmtree/logger"
)

// DB is one open database handle. A process may hold several DBs open
// on distinct files; two Opens of the same canonical path in one
// process share state through the package-level registry (registry.go).
type DB struct {
	mu sync.Mutex

	cfg  Config
	env  Env
	path string
	key  string // canonical path, the registry key

	arena   *arena.Arena
	tr      *tree.Tree
	headers *concurrency.HeaderStore
	locks   *concurrency.LockTable
	readers *concurrency.ReaderSlots
	writer  concurrency.WriterFlag

	pager    *pager.Pager
	compress *compress.Registry
	ckpt     *checkpoint.Store
	wal      *walog.Log

	metrics *metrics.Registry

	// levels is a flat, newest-first list of immutable on-disk segments.
	// The full design's left-hand/right-hand merge-in-progress level
	// shape lives in internal/checkpoint.LevelSnapshot and
	// internal/merge's worker; this handle only needs to know which
	// segments currently make up the database and in what order to
	// consult them, so it keeps that reduced view. See DESIGN.md's
	// "Implementation notes (lsm/)" section.
	levels     []*segment.Segment
	nextSegID  uint64
	segOffsets map[uint64]uint64 // segment id -> pager offset, once flushed at least once

	snapshotID uint64
	writeTxn   *Tx // the currently open top-level-or-nested write transaction, nil if none

	workHook func(*DB)

	bytesSinceCheckpoint int
	closed               bool
}

// Open opens (creating if absent) the database at path, applying opts
// over DefaultConfig.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if err := logger.InitLogger(cfg.logConfig); err != nil {
		return nil, errs.Wrap(errs.ErrGeneric, err, "lsm: init logger")
	}

	key, err := canonicalPath(path)
	if err != nil {
		return nil, errs.Wrap(errs.CantOpen, err, "lsm: resolve path")
	}
	if shared, ok := globalRegistry.acquire(key); ok {
		logger.Debugf("lsm: reusing in-process handle for %s", key)
		return shared, nil
	}

	env := cfg.env
	if env == nil {
		env = NewEnv()
	}

	locks := concurrency.NewLockTable()
	// DMS1 serializes open/close across goroutines in this process; the
	// spec names it as the one lock point worth blocking on (§5).
	if err := locks.AcquireBlocking(concurrency.DMS1, true, env); err != nil {
		return nil, errs.Wrap(errs.Busy, err, "lsm: acquire DMS1")
	}
	defer locks.Release(concurrency.DMS1, true)

	compressReg := compress.NewRegistry()
	if cfg.CompressionFactory != nil {
		compressReg.Register(cfg.CompressionFactory())
	}
	if err := compressReg.SetActive(cfg.CompressionID); err != nil {
		return nil, err
	}

	blockSize := cfg.BlockSizeKB * 1024
	pg, err := pager.Open(path, cfg.PageSize, blockSize, cfg.CompressionID != compress.IDNone, compressReg)
	if err != nil {
		return nil, err
	}

	ckptStore := checkpoint.NewStore(pg)
	snap, hasSnap, err := ckptStore.Recover()
	if err != nil {
		pg.Close()
		return nil, err
	}

	a := arena.New()
	tr := tree.New(a)

	var levels []*segment.Segment
	var nextSegID uint64 = 1
	var logOffset int64
	var snapID uint64
	segOffsets := make(map[uint64]uint64)
	if hasSnap {
		snapID = snap.ID
		logOffset, _ = decodeLogOffset(snap)
		for i, lvl := range snap.Levels {
			id := uint64(i + 1)
			seg, lerr := segment.Load(pg, id, 0, lvl.Left.First)
			if lerr != nil {
				pg.Close()
				return nil, lerr
			}
			levels = append(levels, seg)
			segOffsets[id] = lvl.Left.First
			if seg.ID+1 > nextSegID {
				nextSegID = seg.ID + 1
			}
		}
	}

	walPath := path + ".wal"
	wl, err := walog.Open(walPath, cfg.Safety)
	if err != nil {
		pg.Close()
		return nil, err
	}

	if cfg.UseLog {
		if _, rerr := wl.Recover(logOffset, &replayAdapter{tr: tr}); rerr != nil {
			wl.Close()
			pg.Close()
			return nil, rerr
		}
	}

	var promReg *prometheus.Registry
	if cfg.metricsRegistry != nil {
		promReg = cfg.metricsRegistry
	} else {
		promReg = prometheus.NewRegistry()
	}

	db := &DB{
		cfg:        cfg,
		env:        env,
		path:       path,
		key:        key,
		arena:      a,
		tr:         tr,
		headers:    concurrency.NewHeaderStore(),
		locks:      locks,
		readers:    concurrency.NewReaderSlots(locks),
		pager:      pg,
		compress:   compressReg,
		ckpt:       ckptStore,
		wal:        wl,
		metrics:    metrics.NewRegistry(promReg),
		levels:     levels,
		nextSegID:  nextSegID,
		segOffsets: segOffsets,
		snapshotID: snapID,
	}
	db.headers.Publish(tr.Header())
	globalRegistry.register(key, db)
	logger.Infof("lsm: opened %s (page=%d block=%dKiB safety=%d)", filepath.Clean(path), cfg.PageSize, cfg.BlockSizeKB, cfg.Safety)
	return db, nil
}

// decodeLogOffset unpacks the checkpoint's byte-exact shift-and-toggle
// log pointer encoding (§4.7, Open Question (b)).
func decodeLogOffset(snap *checkpoint.Snapshot) (int64, bool) {
	return int64(snap.LogOffset), snap.LogToggle
}

// SetWorkHook installs fn to be invoked after a commit crosses the
// AUTOFLUSH/AUTOWORK thresholds, in place of an always-on background
// goroutine (§4.12).
func (db *DB) SetWorkHook(fn func(*DB)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.workHook = fn
}

// Close releases path's handle. If other in-process Opens still hold it
// (see registry.go), Close only drops this caller's reference.
func (db *DB) Close() error {
	if !globalRegistry.release(db.key) {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.locks.AcquireBlocking(concurrency.DMS1, true, db.env)
	defer db.locks.Release(concurrency.DMS1, true)

	if db.writeTxn != nil {
		return errs.New(errs.Misuse, "lsm: close with an open transaction")
	}

	if err := db.checkpointLocked(); err != nil {
		logger.Warnf("lsm: final checkpoint failed: %v", err)
	}
	// Open Question (a): Close does not truncate the database file;
	// nothing in this module calls pager.Truncate — see DESIGN.md.
	db.closed = true
	var firstErr error
	if err := db.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.pager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// replayAdapter satisfies walog.Replayer by applying recovered records
// to a fresh in-memory tree, since the arena is pure Go-heap bookkeeping
// and is never itself persisted (see internal/arena's package doc): the
// live tree after a crash is always rebuilt from the log, exactly as §1
// describes recovery.
type replayAdapter struct {
	tr      *tree.Tree
	started bool
}

func (r *replayAdapter) ensureTxn() {
	if !r.started {
		r.tr.BeginWrite()
		r.started = true
	}
}

func (r *replayAdapter) ApplyWrite(key, value []byte) error {
	r.ensureTxn()
	return r.tr.Insert(&tree.Entry{Flags: tree.Insert, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
}

func (r *replayAdapter) ApplyDelete(key []byte) error {
	r.ensureTxn()
	return r.tr.Delete(key)
}

func (r *replayAdapter) ApplyDeleteRange(lo, hi []byte) error {
	r.ensureTxn()
	return r.tr.RangeDelete(lo, hi)
}

// withWriterRepair runs the dead-writer/tree-repair step (§4.9, §4.12)
// before a fresh top-level write transaction starts: if a prior writer
// in this or another process crashed mid-transaction, its bWriter flag
// is still set and any v2 overrides it stamped past the last verified
// header must be cleared before new writes can trust the tree.
func (db *DB) withWriterRepair() {
	if !db.writer.IsSet() {
		return
	}
	if verified, ok := db.headers.Read(); ok {
		cleared := concurrency.Repair(db.tr, db.arena, verified)
		if cleared > 0 {
			logger.Warnf("lsm: repaired %d v2 overrides from a dead writer", cleared)
		}
	}
	db.writer.Clear()
}
