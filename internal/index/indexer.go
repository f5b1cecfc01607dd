// Package index maintains the dual retrieval index: it turns documents into
// vector points with deterministic ids, upserts them in batches, keeps the
// keyword index rebuilt from the stored corpus, and answers document-level
// lookups and collection statistics.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/medrag/internal/config"
	"github.com/Aman-CERP/medrag/internal/embed"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/store"
)

// ChunksPerDocumentEstimate is the assumed chunk count per distinct file
// used by the collection statistics estimate.
const ChunksPerDocumentEstimate = 10

// Ingestion defaults.
const (
	DefaultBatchSize      = 100
	DefaultScrollCap      = 10000
	DefaultScrollPageSize = 100
)

// Document is one chunk of text to index.
type Document struct {
	Content  string
	Metadata map[string]any
}

// AddResult reports how much of an AddDocuments call was committed.
type AddResult struct {
	// Added is the number of points upserted by completed batches.
	Added int

	// Batches is the number of completed batches.
	Batches int

	Duration time.Duration
}

// ReplaceResult reports a ReplaceDocument run.
type ReplaceResult struct {
	AddResult

	// Removed is the number of stale points deleted.
	Removed int
}

// ChunkView is one stored chunk of a document, as returned by lookups.
type ChunkView struct {
	ID       string
	ChunkID  int64
	Content  string
	Metadata map[string]any
}

// Stats summarizes the collection.
type Stats struct {
	Collection string `json:"collection"`

	// Filenames are the distinct source files seen, sorted.
	Filenames []string `json:"filenames"`

	// TotalChunksEstimate is len(Filenames) * ChunksPerDocumentEstimate.
	TotalChunksEstimate int `json:"total_chunks_estimate"`

	// TotalPoints is the exact number of points scanned.
	TotalPoints int `json:"total_points"`

	// Truncated is set when the scan stopped at the scroll cap.
	Truncated bool `json:"truncated"`

	KeywordDocuments int       `json:"keyword_documents"`
	KeywordBuiltAt   time.Time `json:"keyword_built_at"`
}

// Config configures an Indexer.
type Config struct {
	Collection     string
	BatchSize      int
	EmbedWorkers   int
	ScrollCap      int
	ScrollPageSize int

	// DataDir holds the write lock; empty disables cross-process locking.
	DataDir string

	// KeywordPath persists the keyword corpus after each rebuild; empty
	// keeps it in memory only.
	KeywordPath string
}

// ConfigFrom maps the index section of cfg, resolving files against root.
func ConfigFrom(cfg *config.Config, root string) Config {
	return Config{
		Collection:     cfg.VectorStore.Collection,
		BatchSize:      cfg.Index.BatchSize,
		EmbedWorkers:   cfg.Index.EmbedWorkers,
		ScrollCap:      cfg.Index.ScrollCap,
		ScrollPageSize: cfg.Index.ScrollPageSize,
		DataDir:        cfg.ResolvePath(root, ""),
		KeywordPath:    store.KeywordPath(cfg, root),
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.EmbedWorkers <= 0 {
		c.EmbedWorkers = 1
	}
	if c.ScrollCap <= 0 {
		c.ScrollCap = DefaultScrollCap
	}
	if c.ScrollPageSize <= 0 {
		c.ScrollPageSize = DefaultScrollPageSize
	}
	return c
}

// Indexer owns writes to the vector index and the keyword index.
type Indexer struct {
	cfg      Config
	embedder embed.Embedder
	vectors  store.VectorIndex
	keyword  *store.KeywordIndex
	pool     *ants.Pool
	lock     *WriteLock
	logger   *slog.Logger

	// mu serializes writers within the process; lock covers other processes.
	mu sync.Mutex
}

// New creates an Indexer. Close releases its worker pool.
func New(cfg Config, embedder embed.Embedder, vectors store.VectorIndex, keyword *store.KeywordIndex) (*Indexer, error) {
	cfg = cfg.withDefaults()

	pool, err := ants.NewPool(cfg.EmbedWorkers)
	if err != nil {
		return nil, merrors.InternalError("create embedding pool", err)
	}

	ix := &Indexer{
		cfg:      cfg,
		embedder: embedder,
		vectors:  vectors,
		keyword:  keyword,
		pool:     pool,
		logger:   slog.Default().With("component", "indexer", "collection", cfg.Collection),
	}
	if cfg.DataDir != "" {
		ix.lock = NewWriteLock(cfg.DataDir)
	}
	return ix, nil
}

// Keyword returns the keyword index the indexer maintains.
func (ix *Indexer) Keyword() *store.KeywordIndex {
	return ix.keyword
}

// Vectors returns the vector index the indexer writes to.
func (ix *Indexer) Vectors() store.VectorIndex {
	return ix.vectors
}

// Close releases the worker pool. The indexes are owned by the caller.
func (ix *Indexer) Close() error {
	ix.pool.Release()
	return nil
}

func (ix *Indexer) acquire(ctx context.Context) (func(), error) {
	ix.mu.Lock()
	if ix.lock == nil {
		return ix.mu.Unlock, nil
	}
	if err := ix.lock.Acquire(ctx); err != nil {
		ix.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := ix.lock.Release(); err != nil {
			ix.logger.Warn("write_lock_release_failed", slog.String("error", err.Error()))
		}
		ix.mu.Unlock()
	}, nil
}

func validate(docs []Document) error {
	for i, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			return merrors.New(merrors.ErrCodeEmptyContent, "document content is empty", nil).
				WithDetail("index", fmt.Sprint(i))
		}
		if SourceKey(d.Metadata) == "" {
			return merrors.New(merrors.ErrCodeMissingSource, "document metadata needs file_hash or filename", nil).
				WithDetail("index", fmt.Sprint(i))
		}
	}
	return nil
}

// AddDocuments embeds and upserts docs in batches, then rebuilds the keyword
// index. A failed batch stops the run; batches before it stay committed and
// are counted in the result.
func (ix *Indexer) AddDocuments(ctx context.Context, docs []Document) (AddResult, error) {
	start := time.Now()
	var result AddResult

	if err := validate(docs); err != nil {
		return result, err
	}
	if len(docs) == 0 {
		return result, nil
	}

	release, err := ix.acquire(ctx)
	if err != nil {
		return result, err
	}
	defer release()

	if err := ix.upsert(ctx, docs, &result); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if _, err := ix.rebuild(ctx); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	result.Duration = time.Since(start)
	ix.logger.Info("documents_indexed",
		slog.Int("documents", result.Added),
		slog.Int("batches", result.Batches),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// upsert embeds and writes docs batch by batch, counting completed batches
// into result. The caller holds the write lock.
func (ix *Indexer) upsert(ctx context.Context, docs []Document, result *AddResult) error {
	if err := ix.vectors.EnsureCollection(ctx); err != nil {
		return err
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	size := ix.cfg.BatchSize

	for offset := 0; offset < len(docs); offset += size {
		end := min(offset+size, len(docs))
		batch := docs[offset:end]

		vectors, err := ix.embedAll(ctx, batch)
		if err == nil {
			points := make([]store.Point, len(batch))
			for j, d := range batch {
				points[j] = buildPoint(d, offset+j, vectors[j], indexedAt)
			}
			err = ix.vectors.Upsert(ctx, points)
		}
		if err != nil {
			ix.logger.Warn("batch_failed",
				slog.Int("batch", result.Batches+1),
				slog.Int("committed", result.Added),
				slog.String("error", err.Error()))
			return err
		}

		result.Added += len(batch)
		result.Batches++
		ix.logger.Debug("batch_committed", slog.Int("batch", result.Batches), slog.Int("points", len(batch)))
	}
	return nil
}

// ReplaceDocument writes docs as the new content of filename within filter,
// then removes the chunks of that file left over from other versions and
// rebuilds the keyword index once. Stale chunks are told apart by file_hash.
// If writing the new chunks fails, the old chunks are left in place.
func (ix *Indexer) ReplaceDocument(ctx context.Context, filename string, filter store.Filter, docs []Document) (ReplaceResult, error) {
	start := time.Now()
	var result ReplaceResult

	if filename == "" {
		return result, merrors.ValidationError("filename is required", nil)
	}
	if err := validate(docs); err != nil {
		return result, err
	}
	scope := filter.With(store.FieldFilename, filename)

	release, err := ix.acquire(ctx)
	if err != nil {
		return result, err
	}
	defer release()

	current := make(map[string]bool, 1)
	for _, d := range docs {
		if h := store.PayloadString(d.Metadata, store.FieldFileHash); h != "" {
			current[h] = true
		}
	}

	if len(docs) > 0 {
		if err := ix.upsert(ctx, docs, &result.AddResult); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	stale := make(map[string]int)
	unhashed := 0
	_, _, err = ix.scan(ctx, scope, func(r store.Record) {
		h := store.PayloadString(r.Payload, store.FieldFileHash)
		switch {
		case len(docs) == 0:
			result.Removed++
		case h == "":
			unhashed++
		case !current[h]:
			stale[h]++
		}
	})
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if len(docs) == 0 && result.Removed > 0 {
		if err := ix.vectors.Delete(ctx, scope); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}
	for h, n := range stale {
		if err := ix.vectors.Delete(ctx, scope.With(store.FieldFileHash, h)); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Removed += n
	}
	if unhashed > 0 {
		ix.logger.Warn("replace_kept_unhashed_chunks",
			slog.String("filename", filename),
			slog.Int("chunks", unhashed))
	}

	if result.Added > 0 || result.Removed > 0 {
		if _, err := ix.rebuild(ctx); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	result.Duration = time.Since(start)
	ix.logger.Info("document_replaced",
		slog.String("filename", filename),
		slog.Int("added", result.Added),
		slog.Int("removed", result.Removed),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// buildPoint merges metadata with content and the ingestion time.
func buildPoint(d Document, seq int, vector []float32, indexedAt string) store.Point {
	payload := store.NormalizePayload(d.Metadata)
	payload[store.FieldContent] = d.Content
	payload[store.FieldIndexedAt] = indexedAt
	return store.Point{
		ID:      PointID(SourceKey(d.Metadata), seq),
		Vector:  vector,
		Payload: payload,
	}
}

// embedAll embeds each document on the worker pool. The first failure
// cancels the rest.
func (ix *Indexer) embedAll(parent context.Context, docs []Document) ([][]float32, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	vectors := make([][]float32, len(docs))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := range docs {
		wg.Add(1)
		submitErr := ix.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vec, err := ix.embedder.Embed(ctx, docs[i].Content)
			if err != nil {
				fail(err)
				return
			}
			vectors[i] = vec
		})
		if submitErr != nil {
			wg.Done()
			fail(merrors.InternalError("submit embedding task", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		if merrors.GetCode(firstErr) == "" {
			firstErr = merrors.EmbeddingUnavailable("embed document", firstErr)
		}
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// scan pages through points matching filter, stopping at the scroll cap.
func (ix *Indexer) scan(ctx context.Context, filter store.Filter, fn func(store.Record)) (n int, truncated bool, err error) {
	cursor := ""
	for {
		limit := min(ix.cfg.ScrollPageSize, ix.cfg.ScrollCap-n)
		page, next, err := ix.vectors.Scroll(ctx, filter, limit, cursor)
		if err != nil {
			return n, false, err
		}
		for _, r := range page {
			fn(r)
		}
		n += len(page)

		if next == "" || len(page) == 0 {
			return n, false, nil
		}
		if n >= ix.cfg.ScrollCap {
			return n, true, nil
		}
		cursor = next
	}
}

// RebuildKeywordIndex refits the keyword index over every stored point and
// returns the number of documents in the new snapshot.
func (ix *Indexer) RebuildKeywordIndex(ctx context.Context) (int, error) {
	release, err := ix.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return ix.rebuild(ctx)
}

func (ix *Indexer) rebuild(ctx context.Context) (int, error) {
	corpus := make([]store.KeywordDocument, 0)
	_, truncated, err := ix.scan(ctx, nil, func(r store.Record) {
		corpus = append(corpus, store.KeywordDocument{ID: r.ID, Content: r.Content(), Payload: r.Payload})
	})
	if err != nil {
		return 0, err
	}
	if truncated {
		ix.logger.Warn("keyword_corpus_truncated", slog.Int("cap", ix.cfg.ScrollCap))
	}

	ix.keyword.Rebuild(corpus)

	if ix.cfg.KeywordPath != "" {
		if err := ix.keyword.Save(ix.cfg.KeywordPath); err != nil {
			ix.logger.Warn("keyword_save_failed",
				slog.String("path", ix.cfg.KeywordPath),
				slog.String("error", err.Error()))
		}
	}
	return len(corpus), nil
}

// DeleteDocument removes every chunk of filename that also matches filter,
// then rebuilds the keyword index. Deleting something that is not there
// returns 0 and no error.
func (ix *Indexer) DeleteDocument(ctx context.Context, filename string, filter store.Filter) (int, error) {
	if filename == "" {
		return 0, merrors.ValidationError("filename is required", nil)
	}
	scope := filter.With(store.FieldFilename, filename)

	release, err := ix.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	matched, _, err := ix.scan(ctx, scope, func(store.Record) {})
	if err != nil {
		return 0, err
	}
	if matched == 0 {
		ix.logger.Debug("delete_no_match", slog.String("filename", filename))
		return 0, nil
	}

	if err := ix.vectors.Delete(ctx, scope); err != nil {
		return 0, err
	}
	if _, err := ix.rebuild(ctx); err != nil {
		return matched, err
	}

	ix.logger.Info("document_deleted", slog.String("filename", filename), slog.Int("chunks", matched))
	return matched, nil
}

// GetDocumentByFilename returns the stored chunks of filename matching
// filter, ordered by chunk_id then id.
func (ix *Indexer) GetDocumentByFilename(ctx context.Context, filename string, filter store.Filter) ([]ChunkView, error) {
	if filename == "" {
		return nil, merrors.ValidationError("filename is required", nil)
	}

	var chunks []ChunkView
	_, _, err := ix.scan(ctx, filter.With(store.FieldFilename, filename), func(r store.Record) {
		cid, _ := store.PayloadInt(r.Payload, store.FieldChunkID)
		chunks = append(chunks, ChunkView{ID: r.ID, ChunkID: cid, Content: r.Content(), Metadata: r.Payload})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].ChunkID != chunks[j].ChunkID {
			return chunks[i].ChunkID < chunks[j].ChunkID
		}
		return chunks[i].ID < chunks[j].ID
	})
	return chunks, nil
}

// ListDocuments returns the distinct filenames matching filter, sorted.
func (ix *Indexer) ListDocuments(ctx context.Context, filter store.Filter) ([]string, error) {
	stats, err := ix.CollectionStats(ctx, filter)
	if err != nil {
		return nil, err
	}
	return stats.Filenames, nil
}

// CollectionStats scans the points matching filter. The chunk total is an
// estimate; TotalPoints is the exact number scanned.
func (ix *Indexer) CollectionStats(ctx context.Context, filter store.Filter) (Stats, error) {
	seen := make(map[string]struct{})
	n, truncated, err := ix.scan(ctx, filter, func(r store.Record) {
		if name := store.PayloadString(r.Payload, store.FieldFilename); name != "" {
			seen[name] = struct{}{}
		}
	})
	if err != nil {
		return Stats{}, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return Stats{
		Collection:          ix.cfg.Collection,
		Filenames:           names,
		TotalChunksEstimate: len(names) * ChunksPerDocumentEstimate,
		TotalPoints:         n,
		Truncated:           truncated,
		KeywordDocuments:    ix.keyword.Len(),
		KeywordBuiltAt:      ix.keyword.BuiltAt(),
	}, nil
}
