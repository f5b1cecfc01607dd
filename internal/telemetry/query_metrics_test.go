package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Zero-result ring

func TestRing_KeepsMostRecent(t *testing.T) {
	r := newRing[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		r.add(q)
	}

	assert.Equal(t, []string{"q3", "q4", "q5"}, r.ordered())
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := newRing[int](4)
	assert.Empty(t, r.ordered())

	r.add(1)
	r.add(2)
	assert.Equal(t, []int{1, 2}, r.ordered())
}

// TS02: Latency Buckets

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{900 * time.Millisecond, BucketP1000},
		{3 * time.Second, BucketSlow},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

// TS03: QueryMetrics Tests

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a collector without persistence
	m := NewQueryMetrics(nil)
	defer m.Close()

	// When: three queries are answered in different modes
	m.Record(QueryEvent{Query: "glucose level", Mode: ModeHybrid, ResultCount: 3, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "Glucose level ", Mode: ModeVectorOnly, ResultCount: 2, Latency: 200 * time.Millisecond})
	m.Record(QueryEvent{Query: "ferritin", Mode: ModeKeywordOnly, ResultCount: 0, Latency: 2 * time.Second})

	// Then: the snapshot counts modes, latencies, zero results and repeats
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(1), s.ModeCounts[ModeHybrid])
	assert.Equal(t, int64(1), s.ModeCounts[ModeVectorOnly])
	assert.Equal(t, int64(1), s.ModeCounts[ModeKeywordOnly])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketSlow])
	assert.Equal(t, []string{"ferritin"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ExactRepeatCount, "normalized repeat counts once")
	assert.Equal(t, int64(2), s.UniqueQueryCount)
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)
	assert.InDelta(t, 66.67, s.DegradedPercentage(), 0.01)
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	s := m.Snapshot()
	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.ZeroResultPercentage())
	assert.Zero(t, s.DegradedPercentage())
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(QueryEvent{Query: "tsh", Mode: ModeHybrid, ResultCount: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "x", Mode: ModeHybrid})

	assert.Zero(t, m.Snapshot().TotalQueries)
}

// memoryStore is an in-memory QueryMetricsStore.
type memoryStore struct {
	mu        sync.Mutex
	modes     map[QueryMode]int64
	latencies map[LatencyBucket]int64
	failModes bool
	closed    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{modes: map[QueryMode]int64{}, latencies: map[LatencyBucket]int64{}}
}

func (s *memoryStore) SaveModeCounts(_ string, counts map[QueryMode]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failModes {
		return errors.New("disk full")
	}
	for k, v := range counts {
		s.modes[k] += v
	}
	return nil
}

func (s *memoryStore) GetModeCounts(_, _ string) (map[QueryMode]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes, nil
}

func (s *memoryStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.latencies[k] += v
	}
	return nil
}

func (s *memoryStore) GetLatencyCounts(_, _ string) (map[LatencyBucket]int64, error) {
	return s.latencies, nil
}

func (s *memoryStore) Close() error {
	s.closed = true
	return nil
}

func TestQueryMetrics_FlushWritesDeltasOnly(t *testing.T) {
	// Given: a collector with a store and no auto-flush
	st := newMemoryStore()
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{})
	m.Record(QueryEvent{Query: "a", Mode: ModeHybrid, Latency: time.Millisecond})
	m.Record(QueryEvent{Query: "b", Mode: ModeHybrid, Latency: time.Millisecond})

	// When: it flushes twice with one more query in between
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "c", Mode: ModeVectorOnly, Latency: time.Millisecond})
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())

	// Then: each query is persisted exactly once
	assert.Equal(t, int64(2), st.modes[ModeHybrid])
	assert.Equal(t, int64(1), st.modes[ModeVectorOnly])
	assert.Equal(t, int64(3), st.latencies[BucketP50])

	require.NoError(t, m.Close())
	assert.True(t, st.closed)
}

func TestQueryMetrics_FailedFlushRetriesLater(t *testing.T) {
	st := newMemoryStore()
	st.failModes = true
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{})
	m.Record(QueryEvent{Query: "a", Mode: ModeKeywordOnly})

	require.Error(t, m.Flush())

	st.failModes = false
	require.NoError(t, m.Flush())
	assert.Equal(t, int64(1), st.modes[ModeKeywordOnly])
}
