package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Aman-CERP/medrag/internal/chunk"
	"github.com/Aman-CERP/medrag/internal/store"
	"github.com/Aman-CERP/medrag/internal/watcher"
)

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// RootPath anchors the relative paths of watcher events.
	RootPath string

	// UserID scopes every ingested and removed file.
	UserID string

	Splitter *chunk.Splitter
	Indexer  *Indexer
}

// SyncResult counts the outcome of a batch of file events.
type SyncResult struct {
	Indexed int // files (re)ingested
	Removed int // files removed
	Chunks  int // chunks written
	Failed  int // events that failed; each is logged
}

// Coordinator keeps the index in step with files on disk: changed files are
// re-ingested and deleted files are removed, per user.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	return &Coordinator{config: config}
}

// FromChunks converts split chunks into documents for AddDocuments.
func FromChunks(chunks []chunk.Chunk) []Document {
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{Content: c.Content, Metadata: c.Metadata}
	}
	return docs
}

func (c *Coordinator) scope() store.Filter {
	return store.Filter{store.FieldUserID: c.config.UserID}
}

// HandleEvents processes a batch of file events. A failing event is logged
// and counted; the rest of the batch still runs.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) SyncResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res SyncResult
	for _, event := range events {
		path := filepath.Join(c.config.RootPath, event.Path)

		var err error
		switch event.Operation {
		case watcher.OpCreate, watcher.OpModify:
			var n int
			n, err = c.ingest(ctx, path)
			if err == nil && n > 0 {
				res.Indexed++
				res.Chunks += n
			}
		case watcher.OpDelete:
			var n int
			n, err = c.remove(ctx, path)
			if err == nil && n > 0 {
				res.Removed++
			}
		}

		if err != nil {
			res.Failed++
			slog.Warn("failed to process file event",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
		}
	}
	return res
}

// IngestFile replaces the indexed chunks of the file at path and returns how
// many chunks were written.
func (c *Coordinator) IngestFile(ctx context.Context, path string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingest(ctx, path)
}

// RemoveFile removes the indexed chunks of the file at path.
func (c *Coordinator) RemoveFile(ctx context.Context, path string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(ctx, path)
}

func (c *Coordinator) ingest(ctx context.Context, path string) (int, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		slog.Debug("skipping symlink", slog.String("path", path))
		return 0, nil
	}
	if info.IsDir() || !chunk.Supported(path) {
		return 0, nil
	}

	chunks, err := chunk.LoadFile(path, c.config.UserID, c.config.Splitter)
	if err != nil {
		return 0, err
	}

	// Modified content has a new hash and so new point ids; the old ones are
	// dropped only once the new ones are written.
	res, err := c.config.Indexer.ReplaceDocument(ctx, filepath.Base(path), c.scope(), FromChunks(chunks))
	if err != nil {
		return res.Added, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	slog.Info("file_ingested",
		slog.String("filename", filepath.Base(path)),
		slog.Int("chunks", res.Added),
		slog.Int("stale_removed", res.Removed),
		slog.String("strategy", string(c.config.Splitter.Strategy())))
	return res.Added, nil
}

func (c *Coordinator) remove(ctx context.Context, path string) (int, error) {
	if !chunk.Supported(path) {
		return 0, nil
	}
	return c.config.Indexer.DeleteDocument(ctx, filepath.Base(path), c.scope())
}
