package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// LockFileName is the write lock created under the data directory.
const LockFileName = ".write.lock"

// lockRetryDelay is how often a blocked writer polls the lock.
const lockRetryDelay = 50 * time.Millisecond

// WriteLock serializes writers across processes sharing a data directory.
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriteLock creates a lock at <dir>/.write.lock.
func NewWriteLock(dir string) *WriteLock {
	path := filepath.Join(dir, LockFileName)
	return &WriteLock{path: path, flock: flock.New(path)}
}

// Acquire blocks until the lock is held or ctx is done.
// A lock still held by another process when ctx ends returns ERR_206_LOCK_HELD.
func (l *WriteLock) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return merrors.IOError("create lock directory", err).WithDetail("path", l.path)
	}

	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil {
		return merrors.IOError("acquire write lock", err).WithDetail("path", l.path)
	}
	if !ok {
		return merrors.New(merrors.ErrCodeLockHeld, "another medrag process is writing to this index", ctx.Err()).
			WithDetail("path", l.path).
			WithSuggestion("wait for the other ingest or delete to finish")
	}

	l.locked = true
	return nil
}

// TryAcquire takes the lock without blocking and reports whether it was taken.
func (l *WriteLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Release unlocks. Safe to call when not held.
func (l *WriteLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *WriteLock) Path() string {
	return l.path
}
