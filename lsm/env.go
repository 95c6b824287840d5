package lsm

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Env is the handle API's capability trait (§9 Design Notes): the
// environment-dependent operation a DB performs — pausing a blocked lock
// acquisition — goes through this interface rather than directly to the
// OS, so a test can inject internal/memenv's deterministic double instead.
type Env interface {
	// Sleep pauses the calling goroutine for d, used by the lock table's
	// blocking-retry backoff.
	Sleep(d time.Duration)
	// FileID returns an identity string for the file at path. Open does
	// not call it: no identity is stamped into a database file or checked
	// on a later open.
	FileID(path string) (string, error)
}

// realEnv is the default Env backing a production Open call: a real
// time.Sleep and a fresh UUID minted per call, since this implementation
// does not key file identity off inode/device numbers (those aren't
// portable across the platforms this module targets) the way the
// original engine's xOpen does.
type realEnv struct{}

// NewEnv returns the default OS-backed Env.
func NewEnv() Env { return realEnv{} }

func (realEnv) Sleep(d time.Duration) { time.Sleep(d) }

func (realEnv) FileID(path string) (string, error) {
	if _, err := os.Stat(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return uuid.NewString(), nil
}
