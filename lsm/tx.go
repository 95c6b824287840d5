package lsm

import (
	"github.com/tidalstore/lsmtree/internal/concurrency"
	"github.com/tidalstore/lsmtree/internal/errs"
	"github.com/tidalstore/lsmtree/internal/tree"
	"github.com/tidalstore/lsmtree/logger"
)

// Tx is one write transaction, possibly nested: Level 1 is the
// outermost (acquires the WRITER lock and owns the WAL commit), higher
// levels are savepoints within it (§6 "begin/commit/rollback(db, level)
// with nested levels >= 1").
type Tx struct {
	db     *DB
	parent *Tx
	level  int
	mark   int
	walOff int64
	done   bool
}

// Begin opens a write transaction at level (1 for a fresh top-level
// transaction, level+1 of the currently open one for a nested
// savepoint). It is MISUSE to request any level other than "current
// depth + 1".
func (db *DB) Begin(level int) (*Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	curDepth := 0
	if db.writeTxn != nil {
		curDepth = db.writeTxn.level
	}
	if level != curDepth+1 {
		return nil, errs.New(errs.Misuse, "lsm: begin level must be current depth + 1")
	}

	if level == 1 {
		if !db.locks.TryAcquire(concurrency.WRITER, true) {
			return nil, errs.New(errs.Busy, "lsm: WRITER lock held")
		}
		db.withWriterRepair()
		db.writer.Set()
	}

	tx := &Tx{
		db:     db,
		parent: db.writeTxn,
		level:  level,
		mark:   db.tr.BeginWrite(),
		walOff: db.wal.Tail(),
	}
	db.writeTxn = tx
	return tx, nil
}

func (tx *Tx) checkOpen() error {
	if tx.done {
		return errs.New(errs.Misuse, "lsm: transaction already closed")
	}
	return nil
}

// Insert logs and applies an INSERT of key=value within tx.
func (tx *Tx) Insert(key, value []byte) error {
	return tx.apply(tree.Insert, key, nil, value)
}

// Delete logs and applies a POINT_DELETE of key within tx.
func (tx *Tx) Delete(key []byte) error {
	return tx.apply(tree.PointDelete, key, nil, nil)
}

// DeleteRange logs and applies a range delete over (lo, hi) within tx.
func (tx *Tx) DeleteRange(lo, hi []byte) error {
	return tx.apply(0, lo, hi, nil)
}

// apply threads a mutation through the WAL (durability) and the live
// tree (visibility), rolling the tx back to its own mark on any failure
// so a failed operation never leaves partial state (§7).
func (tx *Tx) apply(flag tree.Flags, a, b, value []byte) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	var err error
	switch {
	case flag == tree.Insert:
		if _, err = db.wal.AppendWrite(a, value); err == nil {
			err = db.tr.Insert(&tree.Entry{Flags: tree.Insert, Key: a, Value: value})
		}
	case flag == tree.PointDelete:
		if _, err = db.wal.AppendDelete(a); err == nil {
			err = db.tr.Delete(a)
		}
	default:
		if _, err = db.wal.AppendDeleteRange(a, b); err == nil {
			err = db.tr.RangeDelete(a, b)
		}
	}
	if err != nil {
		db.tr.RollbackTo(tx.mark)
		if terr := db.wal.TruncateTo(tx.walOff); terr != nil {
			logger.Errorf("lsm: rollback-on-error wal truncate failed: %v", terr)
		}
		return err
	}
	return nil
}

// Commit publishes tx's changes. A nested tx (level > 1) just folds back
// into its parent's scope; only the outermost commit forces the WAL
// record and publishes a new tree header.
func (tx *Tx) Commit() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if tx.level == 1 {
		if err := db.wal.Commit(); err != nil {
			return err
		}
		db.headers.Publish(db.tr.Header())
		db.writer.Clear()
		db.locks.Release(concurrency.WRITER, true)
	}
	tx.done = true
	db.writeTxn = tx.parent
	if tx.level == 1 && db.cfg.AutoWork {
		db.maybeAutoWorkLocked()
	}
	return nil
}

// Rollback discards every change made since tx.Begin, including any
// nested savepoints opened and already committed within it.
func (tx *Tx) Rollback() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	db.tr.RollbackTo(tx.mark)
	if err := db.wal.TruncateTo(tx.walOff); err != nil {
		return err
	}
	if tx.level == 1 {
		db.writer.Clear()
		db.locks.Release(concurrency.WRITER, true)
	}
	tx.done = true
	db.writeTxn = tx.parent
	return nil
}

// Insert is the auto-commit convenience form: begin(1); insert; commit(0).
func (db *DB) Insert(key, value []byte) error { return db.autoCommit1(func(tx *Tx) error { return tx.Insert(key, value) }) }

// Delete is Insert's point-delete analogue.
func (db *DB) Delete(key []byte) error { return db.autoCommit1(func(tx *Tx) error { return tx.Delete(key) }) }

// DeleteRange is Insert's range-delete analogue.
func (db *DB) DeleteRange(lo, hi []byte) error {
	return db.autoCommit1(func(tx *Tx) error { return tx.DeleteRange(lo, hi) })
}

func (db *DB) autoCommit1(fn func(*Tx) error) error {
	tx, err := db.Begin(1)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
