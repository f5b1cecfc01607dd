package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{Operation(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{DebounceWindow: 50 * time.Millisecond}.WithDefaults()

	assert.Equal(t, 50*time.Millisecond, got.DebounceWindow)
	assert.Equal(t, DefaultOptions().EventBufferSize, got.EventBufferSize)
	assert.Equal(t, DefaultOptions().DebounceWindow, Options{}.WithDefaults().DebounceWindow)
}

func startWatcher(t *testing.T, dir string, opts Options) *Watcher {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, dir)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Stop()
	})

	// Start registers directories before reading events.
	require.Eventually(t, func() bool { return w.RootPath() != "" }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	return w
}

func collect(t *testing.T, w *Watcher, want int) []FileEvent {
	t.Helper()
	var got []FileEvent
	deadline := time.After(3 * time.Second)
	for len(got) < want {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return got
			}
			got = append(got, batch...)
		case <-deadline:
			return got
		}
	}
	return got
}

func TestWatcher_ReportsIncludedFiles(t *testing.T) {
	// Given: a watched reports directory that only includes .txt files
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{
		DebounceWindow: 30 * time.Millisecond,
		Include:        func(p string) bool { return strings.HasSuffix(p, ".txt") },
	})

	// When: a report and an image are written
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cbc.txt"), []byte("Hemoglobin 13.5 g/dL"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.png"), []byte{1, 2, 3}, 0o644))

	// Then: only the report is reported, as a create
	events := collect(t, w, 1)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, "cbc.txt", ev.Path)
	}
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestWatcher_ReportsDeletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	w := startWatcher(t, dir, Options{DebounceWindow: 30 * time.Millisecond})

	require.NoError(t, os.Remove(path))

	events := collect(t, w, 1)
	require.NotEmpty(t, events)
	assert.Equal(t, OpDelete, events[len(events)-1].Operation)
}

func TestWatcher_SkipsHiddenAndIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".medrag"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0o755))
	w := startWatcher(t, dir, Options{DebounceWindow: 30 * time.Millisecond, IgnoreDirs: []string{"archive"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".medrag", "keyword.gob"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive", "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))

	events := collect(t, w, 1)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, "new.txt", ev.Path)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
