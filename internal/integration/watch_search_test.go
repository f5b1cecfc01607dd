// Package integration holds end-to-end tests that wire the watcher, the
// indexer and the search engine together over in-memory stores.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/medrag/internal/chunk"
	"github.com/Aman-CERP/medrag/internal/embed"
	"github.com/Aman-CERP/medrag/internal/index"
	"github.com/Aman-CERP/medrag/internal/search"
	"github.com/Aman-CERP/medrag/internal/store"
	"github.com/Aman-CERP/medrag/internal/telemetry"
	"github.com/Aman-CERP/medrag/internal/watcher"
)

const dims = 128

type pipeline struct {
	root    string
	coord   *index.Coordinator
	indexer *index.Indexer
	engine  *search.Engine
	metrics *telemetry.QueryMetrics
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	root := t.TempDir()
	embedder := embed.NewStaticEmbedderWithDims(dims)
	vectors := store.NewMemoryIndex(dims)
	keyword := store.NewKeywordIndex(store.DefaultKeywordConfig())

	ix, err := index.New(index.Config{Collection: "it", DataDir: t.TempDir()}, embedder, vectors, keyword)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	splitter, err := chunk.NewSplitter(chunk.Options{})
	require.NoError(t, err)

	metrics := telemetry.NewQueryMetrics(nil)
	t.Cleanup(func() { _ = metrics.Close() })

	engine, err := search.NewEngine(embedder, vectors, keyword, search.DefaultConfig(), search.WithMetrics(metrics))
	require.NoError(t, err)

	return &pipeline{
		root: root,
		coord: index.NewCoordinator(index.CoordinatorConfig{
			RootPath: root,
			UserID:   "u1",
			Splitter: splitter,
			Indexer:  ix,
		}),
		indexer: ix,
		engine:  engine,
		metrics: metrics,
	}
}

func (p *pipeline) filenames(t *testing.T, query string) []string {
	t.Helper()
	results, err := p.engine.HybridSearch(context.Background(), query, store.Filter{store.FieldUserID: "u1"}, 5)
	require.NoError(t, err)
	var names []string
	for _, g := range search.GroupByFilename(results) {
		names = append(names, g.Filename)
	}
	return names
}

// startWatcher feeds debounced events from p.root into the coordinator
// until the test ends.
func (p *pipeline) startWatcher(t *testing.T) {
	t.Helper()

	w, err := watcher.New(watcher.Options{
		DebounceWindow: 50 * time.Millisecond,
		Include:        chunk.Supported,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx, p.root) }()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				p.coord.HandleEvents(ctx, batch)
			}
		}
	}()

	// Let the watcher register the root before files change.
	time.Sleep(200 * time.Millisecond)
}

// contents returns the stored chunk contents of filename.
func (p *pipeline) contents(filename string) []string {
	chunks, err := p.indexer.GetDocumentByFilename(context.Background(), filename, nil)
	if err != nil {
		return nil
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func hasContent(contents []string, substr string) bool {
	for _, c := range contents {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// ============================================================================
// TS01: ingest then search
// ============================================================================

func TestPipeline_IngestedReportIsSearchable(t *testing.T) {
	// Given: a report ingested for u1
	p := newPipeline(t)
	path := filepath.Join(p.root, "glucose.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Test Report\nTest Name: Fasting Glucose\nGlucose 110 mg/dL\n"), 0o644))

	n, err := p.coord.IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// When: searching for the measurement
	results, err := p.engine.HybridSearch(context.Background(), "glucose mg/dL",
		store.Filter{store.FieldUserID: "u1"}, 5)

	// Then: the chunk ranks first with the measurement bonus and both scores
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "glucose.txt", results[0].Filename())
	assert.Greater(t, results[0].KeywordScore, 0.0)
	assert.Contains(t, results[0].Boosts, search.MeasurementBoostName)

	snap := p.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.ModeCounts[telemetry.ModeHybrid])
}

// ============================================================================
// TS02: watcher keeps the index in sync
// ============================================================================

func TestPipeline_WatcherSyncsCreateModifyDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a watched directory
	p := newPipeline(t)
	p.startWatcher(t)
	path := filepath.Join(p.root, "lipid.txt")

	// When: a report appears
	require.NoError(t, os.WriteFile(path,
		[]byte("Test Report\nTest Name: Lipid Panel\nLDL 130 mg/dL\n"), 0o644))

	// Then: it becomes searchable
	require.Eventually(t, func() bool {
		return hasContent(p.contents("lipid.txt"), "LDL 130")
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"lipid.txt"}, p.filenames(t, "ldl"))

	// When: it is rewritten
	require.NoError(t, os.WriteFile(path,
		[]byte("Test Report\nTest Name: Lipid Panel\nHDL 55 mg/dL\n"), 0o644))

	// Then: only the new content remains
	require.Eventually(t, func() bool {
		c := p.contents("lipid.txt")
		return len(c) == 1 && hasContent(c, "HDL 55")
	}, 5*time.Second, 50*time.Millisecond)

	// When: it is deleted
	require.NoError(t, os.Remove(path))

	// Then: nothing is left to find
	require.Eventually(t, func() bool {
		return len(p.contents("lipid.txt")) == 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, p.indexer.Keyword().Empty())
}

func TestPipeline_WatcherIgnoresUnsupportedFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	p := newPipeline(t)
	p.startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(p.root, "scan.png"), []byte("binary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(p.root, "cbc.txt"),
		[]byte("Test Report\nTest Name: CBC\nHemoglobin 13.5 g/dL\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(p.contents("cbc.txt")) == 1
	}, 5*time.Second, 50*time.Millisecond)

	names, err := p.indexer.ListDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cbc.txt"}, names)
}
