package bootstrap

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

var (
	// RunLockTimeout is how long AcquireRunLock waits for a concurrent run
	// to finish before giving up.
	RunLockTimeout = 5 * time.Minute

	// retryLockPeriod is the wait between lock acquisition attempts.
	retryLockPeriod = 1000 * time.Millisecond
)

// RunLock serializes whole provisioning runs. The persistent environment and
// machine PATH are shared mutable state, so two concurrent runs -- even of
// independent requirements -- are unsafe.
// Always Release() when done; recommend using defer.
type RunLock struct {
	lockPath string
	flock    *flock.Flock
}

// AcquireRunLock takes the machine-wide provisioning lock under dir,
// retrying on a fixed period until RunLockTimeout elapses.
func AcquireRunLock(dir string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create lock directory %s", dir)
	}
	lockPath := filepath.Join(dir, "llamaforge.lock")
	l := &RunLock{lockPath: lockPath, flock: flock.New(lockPath)}
	timeOut := time.After(RunLockTimeout)
	for {
		ok, err := l.flock.TryLock()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to acquire run lock %q", lockPath)
		}
		if ok {
			return l, nil
		}
		select {
		case <-timeOut:
			return nil, errors.Errorf(
				"timeout waiting for the run lock %q: either another provisioning run is in progress, "+
					"or the lock file is stale, please manually remove it and retry!", lockPath)
		case <-time.After(retryLockPeriod):
			continue
		}
	}
}

// Release unlocks the run lock.
func (l *RunLock) Release() error {
	if l == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return errors.Wrapf(err, "failed to release run lock %q: please clean it up manually", l.lockPath)
	}
	return nil
}
