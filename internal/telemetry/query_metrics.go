// Package telemetry records how hybrid searches were answered.
// All telemetry data is stored locally - no external reporting. Raw query
// text stays in memory; only counters are persisted.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DateLayout formats the UTC day persisted counters are aggregated under.
const DateLayout = "2006-01-02"

// QueryMode names which sub-searches contributed to a ranking.
type QueryMode string

const (
	ModeHybrid      QueryMode = "hybrid"
	ModeVectorOnly  QueryMode = "vector_only"
	ModeKeywordOnly QueryMode = "keyword_only"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // 500ms-1s
	BucketSlow  LatencyBucket = "slow"  // >=1s
)

// LatencyToBucket converts a duration to its histogram bucket.
// Provider round trips put most hybrid queries well above 10ms.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	default:
		return BucketSlow
	}
}

// QueryEvent represents a single search query for telemetry recording.
type QueryEvent struct {
	Query       string
	Mode        QueryMode
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ring keeps the most recent items up to a fixed capacity. Callers
// synchronize access.
type ring[T any] struct {
	items []T
	next  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, 0, capacity)}
}

func (r *ring[T]) add(item T) {
	if len(r.items) < cap(r.items) {
		r.items = append(r.items, item)
		return
	}
	r.items[r.next] = item
	r.next = (r.next + 1) % len(r.items)
}

// ordered returns the items oldest first.
func (r *ring[T]) ordered() []T {
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

// QueryMetricsSnapshot is an immutable snapshot of query metrics.
type QueryMetricsSnapshot struct {
	ModeCounts          map[QueryMode]int64     `json:"mode_counts"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	UniqueQueryCount    int64                   `json:"unique_query_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// DegradedPercentage returns the share of queries answered by a single sub-search.
func (s *QueryMetricsSnapshot) DegradedPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	degraded := s.ModeCounts[ModeVectorOnly] + s.ModeCounts[ModeKeywordOnly]
	return float64(degraded) / float64(s.TotalQueries) * 100
}

// QueryMetricsStore defines persistence operations for query metrics.
// Save methods add to the stored counts for date.
type QueryMetricsStore interface {
	SaveModeCounts(date string, counts map[QueryMode]int64) error
	GetModeCounts(from, to string) (map[QueryMode]int64, error)
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)
	Close() error
}

// QueryMetricsConfig configures the query metrics collector.
type QueryMetricsConfig struct {
	ZeroResultsCapacity   int           // Max zero-result queries kept (default: 100)
	RecentQueriesCapacity int           // Max query hashes tracked for repeats (default: 500)
	FlushInterval         time.Duration // How often to flush to store (default: 60s, 0 = no auto-flush)
}

// DefaultQueryMetricsConfig returns sensible defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	modes           map[QueryMode]int64
	latencies       map[LatencyBucket]int64
	zeroResults     *ring[string]
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64

	// Counts recorded since the last flush.
	pendingModes     map[QueryMode]int64
	pendingLatencies map[LatencyBucket]int64

	store       QueryMetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a new metrics collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a new metrics collector with custom configuration.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		modes:            make(map[QueryMode]int64),
		latencies:        make(map[LatencyBucket]int64),
		zeroResults:      newRing[string](cfg.ZeroResultsCapacity),
		startTime:        time.Now(),
		recentQueries:    recentQueries,
		pendingModes:     make(map[QueryMode]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		store:            store,
		config:           cfg,
		stopCh:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			if err := m.Flush(); err != nil {
				slog.Debug("telemetry flush failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record captures metrics from a search query.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.totalQueries++
	m.modes[event.Mode]++
	m.pendingModes[event.Mode]++

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pendingLatencies[bucket]++

	if event.IsZeroResult() {
		m.zeroResults.add(event.Query)
		m.zeroResultCount++
	}

	queryHash := hashQuery(event.Query)
	if _, exists := m.recentQueries.Get(queryHash); exists {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(queryHash, struct{}{})
}

// hashQuery creates a normalized hash of the query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns current metrics for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	modes := make(map[QueryMode]int64, len(m.modes))
	for k, v := range m.modes {
		modes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &QueryMetricsSnapshot{
		ModeCounts:          modes,
		ZeroResultQueries:   m.zeroResults.ordered(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeatCount,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
		Since:               m.startTime,
	}
}

// Flush adds the counts recorded since the last flush to the store.
// Safe to call even if no store is configured.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	modes, latencies := m.pendingModes, m.pendingLatencies
	m.pendingModes = make(map[QueryMode]int64)
	m.pendingLatencies = make(map[LatencyBucket]int64)
	m.mu.Unlock()

	if len(modes) == 0 && len(latencies) == 0 {
		return nil
	}

	today := time.Now().UTC().Format(DateLayout)
	if err := m.store.SaveModeCounts(today, modes); err != nil {
		m.restore(modes, latencies)
		return err
	}
	if err := m.store.SaveLatencyCounts(today, latencies); err != nil {
		m.restore(nil, latencies)
		return err
	}
	return nil
}

// restore puts unflushed counts back so the next flush retries them.
func (m *QueryMetrics) restore(modes map[QueryMode]int64, latencies map[LatencyBucket]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range modes {
		m.pendingModes[k] += v
	}
	for k, v := range latencies {
		m.pendingLatencies[k] += v
	}
}

// Close flushes and releases resources. The store is closed too.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	if snap := m.Snapshot(); snap.TotalQueries > 0 {
		slog.Debug("query_metrics",
			slog.Int64("queries", snap.TotalQueries),
			slog.Int64("zero_results", snap.ZeroResultCount),
			slog.Float64("degraded_pct", snap.DegradedPercentage()),
			slog.Int64("repeats", snap.ExactRepeatCount))
	}

	if err := m.Flush(); err != nil {
		return err
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
