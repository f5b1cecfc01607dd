package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/medrag/internal/embed"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/store"
	"github.com/Aman-CERP/medrag/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine ranks chunks by combining vector and keyword similarity.
type Engine struct {
	embedder embed.Embedder
	vectors  store.VectorIndex
	keyword  *store.KeywordIndex
	config   Config
	metrics  *telemetry.QueryMetrics // optional
	logger   *slog.Logger
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithMetrics sets an optional query metrics collector.
// When set, the retrieval mode, latency and zero-result queries are tracked.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a hybrid search engine.
// Returns an error if any required dependency is nil.
func NewEngine(
	embedder embed.Embedder,
	vectors store.VectorIndex,
	keyword *store.KeywordIndex,
	config Config,
	opts ...EngineOption,
) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if keyword == nil {
		return nil, fmt.Errorf("%w: keyword index is required", ErrNilDependency)
	}

	e := &Engine{
		embedder: embedder,
		vectors:  vectors,
		keyword:  keyword,
		config:   config.withDefaults(),
		logger:   slog.Default().With(slog.String("component", "search")),
	}
	for _, opt := range opts {
		opt(e)
	}

	if sum := e.config.Weights.Vector + e.config.Weights.Keyword; sum < 0.99 || sum > 1.01 {
		e.logger.Warn("fusion weights do not sum to 1.0",
			slog.Float64("vector_weight", e.config.Weights.Vector),
			slog.Float64("keyword_weight", e.config.Weights.Keyword))
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// HybridSearch returns at most topK chunks matching filter, best first.
//
// The query is embedded once, then the vector and keyword searches run in
// parallel, each for topK*CandidateMultiplier candidates. Keyword hits are
// restricted to filter before fusion. A failed vector search degrades to the
// keyword ranking; an empty keyword index degrades to the vector ranking.
// When both are unavailable the result is empty. Only a failed query
// embedding or a cancelled search fails the call, with ERR_313.
func (e *Engine) HybridSearch(ctx context.Context, query string, filter store.Filter, topK int) ([]FusedResult, error) {
	start := time.Now()

	if topK < 0 {
		return nil, merrors.New(merrors.ErrCodeInvalidTopK, fmt.Sprintf("top_k must be >= 0, got %d", topK), nil)
	}
	if topK == 0 {
		return []FusedResult{}, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, merrors.New(merrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if topK > e.config.MaxTopK {
		e.logger.Debug("top_k clamped", slog.Int("requested", topK), slog.Int("max", e.config.MaxTopK))
		topK = e.config.MaxTopK
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, merrors.RetrievalUnavailable("embed query", err)
	}

	candidates := topK * e.config.CandidateMultiplier
	vecHits, kwHits, vecErr, err := e.parallelSearch(ctx, query, embedding, filter, candidates)
	if err != nil {
		return nil, err
	}

	mode := telemetry.ModeHybrid
	keywordEmpty := e.keyword.Empty()
	switch {
	case vecErr != nil:
		e.logger.Warn("vector search failed, using keyword ranking only",
			slog.String("error", vecErr.Error()),
			slog.Bool("keyword_empty", keywordEmpty))
		vecHits = nil
		mode = telemetry.ModeKeywordOnly
	case keywordEmpty:
		e.logger.Debug("keyword index empty, using vector ranking only")
		mode = telemetry.ModeVectorOnly
	}

	fused := Fuse(vecHits, kwHits, e.config.Weights, e.config.Boosts)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	e.logger.Debug("hybrid_search",
		slog.String("mode", string(mode)),
		slog.Int("vector_hits", len(vecHits)),
		slog.Int("keyword_hits", len(kwHits)),
		slog.Int("results", len(fused)),
		slog.Duration("latency", time.Since(start)))
	e.recordMetrics(query, mode, len(fused), time.Since(start))

	return fused, nil
}

// parallelSearch runs both sub-searches concurrently. A vector failure is
// returned as vecErr so the caller can degrade; err is set only when ctx ends.
func (e *Engine) parallelSearch(
	ctx context.Context,
	query string,
	embedding []float32,
	filter store.Filter,
	limit int,
) (vecHits []store.ScoredPoint, kwHits []store.KeywordHit, vecErr, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vecHits, vecErr = e.vectors.Search(gctx, embedding, filter, limit)
		return nil // Don't fail the group; keyword results still count
	})

	g.Go(func() error {
		// The keyword index is tenant-agnostic; score every positive match
		// when filtering so in-scope hits are not crowded out.
		kwLimit := limit
		if !filter.Empty() {
			kwLimit = max(limit, e.keyword.Len())
		}
		hits := FilterKeywordHits(e.keyword.Score(query, kwLimit), filter)
		if len(hits) > limit {
			hits = hits[:limit]
		}
		kwHits = hits
		return nil
	})

	_ = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, nil, merrors.RetrievalUnavailable("search cancelled", ctxErr)
	}
	return vecHits, kwHits, vecErr, nil
}

// recordMetrics records query telemetry if a collector is configured.
func (e *Engine) recordMetrics(query string, mode telemetry.QueryMode, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Mode:        mode,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}
