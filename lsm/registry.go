package lsm

import (
	"path/filepath"
	"sync"
)

// processRegistry is the process-wide table of open databases keyed by
// canonical absolute path (§9 Design Notes: "a process-wide registry
// keyed by canonical absolute path ... mapping path -> shared DB handle
// with refcount"). It lets two Open calls against the same file in one
// process share the same in-memory tree/arena/lock table instead of
// racing each other through independent file descriptors, matching the
// spec's description of multiple in-process handles cooperating through
// shared state rather than file locks.
type processRegistry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	db       *DB
	refCount int
}

var globalRegistry = &processRegistry{entries: make(map[string]*registryEntry)}

func canonicalPath(path string) (string, error) {
	return filepath.Abs(path)
}

// acquire returns the shared *DB for key if one is already open in this
// process, incrementing its refcount; ok is false if none exists yet and
// the caller should open one and call register.
func (r *processRegistry) acquire(key string) (db *DB, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.entries[key]
	if !found {
		return nil, false
	}
	e.refCount++
	return e.db, true
}

// register records a newly opened db under key with a refcount of 1.
func (r *processRegistry) register(key string, db *DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = &registryEntry{db: db, refCount: 1}
}

// release decrements key's refcount, returning true once it reaches
// zero (the caller is then responsible for the real Close).
func (r *processRegistry) release(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return true
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(r.entries, key)
		return true
	}
	return false
}
