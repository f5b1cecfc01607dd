package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

func TestWriteLock_AcquireRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	l := NewWriteLock(dir)

	require.NoError(t, l.Acquire(context.Background()))
	assert.FileExists(t, filepath.Join(dir, LockFileName))
	assert.Equal(t, filepath.Join(dir, LockFileName), l.Path())

	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "second release is a no-op")
}

func TestWriteLock_HeldReturnsLockHeld(t *testing.T) {
	// Given: another holder of the same lock file
	dir := t.TempDir()
	holder := NewWriteLock(dir)
	ok, err := holder.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	// When: a second writer waits with a deadline
	l := NewWriteLock(dir)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err = l.Acquire(ctx)

	// Then: it gives up with a lock-held error
	require.Error(t, err)
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeLockHeld))

	ok, err = l.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok)

	// And: it gets the lock once released
	require.NoError(t, holder.Release())
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Release())
}
