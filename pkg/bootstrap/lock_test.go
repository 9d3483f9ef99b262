package bootstrap

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestAcquireRunLock(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		lock, err := AcquireRunLock(tmpDir)
		if err != nil {
			t.Fatalf("AcquireRunLock failed: %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Errorf("Release failed: %v", err)
		}

		// Releasable again by someone else once released.
		other := flock.New(filepath.Join(tmpDir, "llamaforge.lock"))
		ok, err := other.TryLock()
		if err != nil {
			t.Fatalf("TryLock after release failed: %v", err)
		}
		if !ok {
			t.Error("lock still held after Release")
		}
		_ = other.Unlock()
	})

	t.Run("ConcurrentRunTimesOut", func(t *testing.T) {
		origTimeout, origRetry := RunLockTimeout, retryLockPeriod
		RunLockTimeout = 50 * time.Millisecond
		retryLockPeriod = 10 * time.Millisecond
		defer func() { RunLockTimeout, retryLockPeriod = origTimeout, origRetry }()

		first, err := AcquireRunLock(tmpDir)
		if err != nil {
			t.Fatalf("AcquireRunLock failed: %v", err)
		}
		defer func() { _ = first.Release() }()

		if _, err := AcquireRunLock(tmpDir); err == nil {
			t.Error("second AcquireRunLock succeeded while the first still holds the lock")
		}
	})

	t.Run("CreatesLockDirectory", func(t *testing.T) {
		nested := filepath.Join(t.TempDir(), "a", "b")
		lock, err := AcquireRunLock(nested)
		if err != nil {
			t.Fatalf("AcquireRunLock failed to create the lock directory: %v", err)
		}
		_ = lock.Release()
	})
}

func TestNilRunLockRelease(t *testing.T) {
	var lock *RunLock
	if err := lock.Release(); err != nil {
		t.Errorf("nil Release returned %v, want nil", err)
	}
}
