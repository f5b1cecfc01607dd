package embed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double that counts calls and can be scripted to fail.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	texts      atomic.Int64
	dimensions int
	modelName  string

	mu      sync.Mutex
	vector  []float32
	errs    []error
	delay   time.Duration
	closed  bool
	batches [][]string
}

func newMockEmbedder(dims int) *mockEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i+1) * 0.001
	}
	return &mockEmbedder{dimensions: dims, modelName: "mock-model", vector: vec}
}

// failNext queues errors returned by subsequent calls, in order.
func (m *mockEmbedder) failNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

func (m *mockEmbedder) setVector(v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vector = v
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	vecs, err := m.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	return m.embedBatch(ctx, texts)
}

func (m *mockEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	delay := m.delay
	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	}
	vec := m.vector
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	m.texts.Add(int64(len(texts)))
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = append([]float32(nil), vec...)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int                  { return m.dimensions }
func (m *mockEmbedder) ModelName() string                { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return true }

func (m *mockEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ============================================================================
// TS01: Cache Hit on Same Text
// ============================================================================

func TestCachedEmbedder_CacheHit_ReturnsWithoutCallingInner(t *testing.T) {
	// Given: a cached embedder
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100, time.Hour)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	text := "HbA1c 6.1 %"

	// When: I embed the same text twice
	result1, err1 := cached.Embed(ctx, text)
	result2, err2 := cached.Embed(ctx, text)

	// Then: inner embedder is called only once
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, int64(1), inner.embedCalls.Load(), "inner should be called once")
	assert.Equal(t, result1, result2, "cached results should match")
}

func TestCachedEmbedder_CacheMiss_CallsInnerForNewText(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100, time.Hour)

	_, _ = cached.Embed(context.Background(), "sodium")
	_, _ = cached.Embed(context.Background(), "potassium")

	assert.Equal(t, int64(2), inner.embedCalls.Load())
	assert.Equal(t, 2, cached.Len())
}

// ============================================================================
// TS02: Batch Sends Only Misses
// ============================================================================

func TestCachedEmbedder_EmbedBatch_SendsOnlyMisses(t *testing.T) {
	// Given: one text already cached
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100, time.Hour)
	_, err := cached.Embed(context.Background(), "albumin")
	require.NoError(t, err)

	// When: a batch contains it plus two new texts
	vecs, err := cached.EmbedBatch(context.Background(), []string{"albumin", "bilirubin", "urea"})

	// Then: only the misses reach the provider
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, []string{"bilirubin", "urea"}, inner.batches[len(inner.batches)-1])
	assert.Equal(t, 3, cached.Len())
}

func TestCachedEmbedder_EmbedBatch_AllHits_NoProviderCall(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100, time.Hour)
	_, _ = cached.EmbedBatch(context.Background(), []string{"a1", "b1"})

	_, err := cached.EmbedBatch(context.Background(), []string{"b1", "a1"})

	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_Error_IsNotCached(t *testing.T) {
	inner := newMockEmbedder(8)
	inner.failNext(assert.AnError)
	cached := NewCachedEmbedder(inner, 100, time.Hour)

	_, err := cached.Embed(context.Background(), "ferritin")
	require.Error(t, err)
	assert.Equal(t, 0, cached.Len())

	_, err = cached.Embed(context.Background(), "ferritin")
	require.NoError(t, err)
}

// ============================================================================
// TS03: Eviction and Expiry
// ============================================================================

func TestCachedEmbedder_CacheEviction_OldestEvictedFirst(t *testing.T) {
	// Given: a cache with room for two entries
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 2, time.Hour)
	ctx := context.Background()

	// When: three distinct texts are embedded
	_, _ = cached.Embed(ctx, "first")
	_, _ = cached.Embed(ctx, "second")
	_, _ = cached.Embed(ctx, "third")

	// Then: the first one must be recomputed
	before := inner.embedCalls.Load()
	_, _ = cached.Embed(ctx, "first")
	assert.Equal(t, before+1, inner.embedCalls.Load())
	assert.Equal(t, 2, cached.Len())
}

func TestCachedEmbedder_TTL_ExpiresEntries(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 10, 20*time.Millisecond)

	_, _ = cached.Embed(context.Background(), "creatinine")
	time.Sleep(60 * time.Millisecond)
	_, _ = cached.Embed(context.Background(), "creatinine")

	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedder_ZeroSize_UsesDefault(t *testing.T) {
	cached := NewCachedEmbedder(newMockEmbedder(8), 0, 0)
	for i := 0; i < 20; i++ {
		_, _ = cached.Embed(context.Background(), string(rune('a'+i)))
	}
	assert.Equal(t, 20, cached.Len())
}

// ============================================================================
// TS04: Passthrough and Lifecycle
// ============================================================================

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 10, time.Hour)

	assert.Equal(t, 8, cached.Dimensions())
	assert.Equal(t, "mock-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())
}

func TestCachedEmbedder_Close_PurgesAndClosesInner(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 10, time.Hour)
	_, _ = cached.Embed(context.Background(), "x1")

	require.NoError(t, cached.Close())

	assert.Equal(t, 0, cached.Len())
	assert.True(t, inner.closed)
}

func TestCachedEmbedder_ConcurrentAccess_NoRace(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100, time.Hour)
	texts := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cached.Embed(context.Background(), texts[j%len(texts)])
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(texts), cached.Len())
}
