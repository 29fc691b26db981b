package syncer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"photosync/internal/config"
)

// ErrAlreadyRunning indicates another process holds the run lock.
var ErrAlreadyRunning = errors.New("another photosync instance is already running")

// AcquireRunLock takes the single-instance lock for sync runs so two
// processes never race on the same ledger and destination tree. The returned
// release function is safe to call once.
func AcquireRunLock(cfg *config.Config) (release func(), err error) {
	lockDir := cfg.Paths.StateDir
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	lock := flock.New(filepath.Join(lockDir, "photosync.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return func() { _ = lock.Unlock() }, nil
}
