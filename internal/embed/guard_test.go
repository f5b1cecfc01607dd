package embed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

func fastGuardConfig() GuardConfig {
	cfg := DefaultGuardConfig()
	cfg.Timeout = time.Second
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Retry.Jitter = false
	return cfg
}

// ============================================================================
// TS01: Output Contract
// ============================================================================

func TestGuardedEmbedder_Embed_NormalizesOutput(t *testing.T) {
	// Given: a provider returning an unnormalized vector
	inner := newMockEmbedder(2)
	inner.setVector([]float32{3, 4})
	g := NewGuardedEmbedder(inner, fastGuardConfig())

	// When: I embed
	vec, err := g.Embed(context.Background(), "hemoglobin")

	// Then: the vector has unit length
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestGuardedEmbedder_ZeroVector_IsEmbeddingUnavailable(t *testing.T) {
	inner := newMockEmbedder(3)
	inner.setVector([]float32{0, 0, 0})
	g := NewGuardedEmbedder(inner, fastGuardConfig())

	_, err := g.Embed(context.Background(), "anything")

	require.Error(t, err)
	assert.True(t, errors.Is(err, merrors.ErrEmbeddingUnavailable))
	assert.Equal(t, int64(1), inner.batchCalls.Load(), "degenerate output is not retried")
}

func TestGuardedEmbedder_WrongDimensions_IsEmbeddingUnavailable(t *testing.T) {
	inner := newMockEmbedder(4)
	inner.setVector([]float32{1, 2})
	g := NewGuardedEmbedder(inner, fastGuardConfig())

	_, err := g.Embed(context.Background(), "anything")

	require.Error(t, err)
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeEmbeddingUnavailable))
	assert.Contains(t, err.Error(), "expected 4")
}

func TestGuardedEmbedder_EmptyBatch_NoProviderCall(t *testing.T) {
	inner := newMockEmbedder(4)
	g := NewGuardedEmbedder(inner, fastGuardConfig())

	vecs, err := g.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, int64(0), inner.batchCalls.Load())
}

// ============================================================================
// TS02: Retry
// ============================================================================

func TestGuardedEmbedder_TransientFailure_Retried(t *testing.T) {
	// Given: a provider that fails twice then succeeds
	inner := newMockEmbedder(4)
	inner.failNext(errors.New("connection reset"), errors.New("503"))
	g := NewGuardedEmbedder(inner, fastGuardConfig())

	// When: I embed
	vec, err := g.Embed(context.Background(), "urea")

	// Then: the third attempt succeeds
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(3), inner.batchCalls.Load())
}

func TestGuardedEmbedder_RetriesExhausted_IsEmbeddingUnavailable(t *testing.T) {
	inner := newMockEmbedder(4)
	inner.failNext(errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"))
	g := NewGuardedEmbedder(inner, fastGuardConfig())

	_, err := g.Embed(context.Background(), "urea")

	require.Error(t, err)
	assert.True(t, errors.Is(err, merrors.ErrEmbeddingUnavailable))
	assert.Equal(t, int64(1+DefaultMaxRetries), inner.batchCalls.Load())
}

// ============================================================================
// TS03: Deadlines and Bounds
// ============================================================================

func TestGuardedEmbedder_Timeout_IsEmbeddingUnavailable(t *testing.T) {
	// Given: a provider slower than the call deadline
	inner := newMockEmbedder(4)
	inner.delay = 200 * time.Millisecond
	cfg := fastGuardConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.Retry.MaxRetries = 0
	g := NewGuardedEmbedder(inner, cfg)

	// When: I embed
	start := time.Now()
	_, err := g.Embed(context.Background(), "slow")

	// Then: the guard gives up at the deadline
	require.Error(t, err)
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeEmbeddingUnavailable))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestGuardedEmbedder_CancelledContext_NotRetried(t *testing.T) {
	inner := newMockEmbedder(4)
	g := NewGuardedEmbedder(inner, fastGuardConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Embed(ctx, "x")

	require.Error(t, err)
	assert.Equal(t, int64(0), inner.batchCalls.Load())
}

func TestGuardedEmbedder_TruncatesLongInput(t *testing.T) {
	inner := newMockEmbedder(4)
	cfg := fastGuardConfig()
	cfg.MaxInputChars = 10
	g := NewGuardedEmbedder(inner, cfg)

	_, err := g.Embed(context.Background(), strings.Repeat("é", 50))

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), inner.batches[0][0])
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"ñandú", 2, "ña"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.max))
	}
}

func TestGuardedEmbedder_RateLimit_SpacesCalls(t *testing.T) {
	inner := newMockEmbedder(4)
	cfg := fastGuardConfig()
	cfg.RequestsPerSecond = 20
	g := NewGuardedEmbedder(inner, cfg)

	start := time.Now()
	for i := 0; i < 25; i++ {
		_, err := g.Embed(context.Background(), "x")
		require.NoError(t, err)
	}

	// A burst of 20 is free; the remaining 5 wait ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestGuardedEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(4)
	g := NewGuardedEmbedder(inner, GuardConfig{})

	assert.Equal(t, 4, g.Dimensions())
	assert.Equal(t, "mock-model", g.ModelName())
	assert.True(t, g.Available(context.Background()))
	require.NoError(t, g.Close())
	assert.True(t, inner.closed)
}
