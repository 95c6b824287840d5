// Package memenv provides an in-memory stand-in for the lsm package's
// Env capability trait (§9 Design Notes: "a capability trait (Env)
// injected at construction; tests implement an in-memory Env"). It
// exists so the DMS1 blocking-retry path (internal/concurrency) and any
// FileID-stamping code can be exercised deterministically in tests
// without real wall-clock sleeps or real file identity.
package memenv

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Env implements the lsm.Env interface (Sleep + FileID) structurally,
// without importing the lsm package — Go interfaces are satisfied by
// shape, and a test-only package has no business depending on the
// public API it's standing in for.
type Env struct {
	counter int64
	// Delays records every requested Sleep duration instead of actually
	// sleeping, so a test can assert on the backoff schedule without
	// paying for it.
	Delays []time.Duration
}

// New returns a fresh in-memory Env.
func New() *Env { return &Env{} }

// Sleep records d and returns immediately.
func (e *Env) Sleep(d time.Duration) {
	e.Delays = append(e.Delays, d)
}

// FileID returns a deterministic, monotonically increasing id for path,
// standing in for the inode/device pair a POSIX Env.FileID would
// return.
func (e *Env) FileID(path string) (string, error) {
	n := atomic.AddInt64(&e.counter, 1)
	return fmt.Sprintf("memenv:%s:%d", path, n), nil
}
