package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// GuardConfig configures GuardedEmbedder.
type GuardConfig struct {
	// Timeout bounds each provider call (default: DefaultTimeout).
	Timeout time.Duration

	// MaxInputChars truncates each text to this many runes (default: 8000).
	MaxInputChars int

	// RequestsPerSecond throttles provider calls; 0 disables throttling.
	RequestsPerSecond float64

	// Retry controls backoff for transient failures.
	Retry merrors.RetryConfig
}

// DefaultGuardConfig returns the guard settings used for remote providers.
func DefaultGuardConfig() GuardConfig {
	retry := merrors.DefaultRetryConfig()
	retry.MaxRetries = DefaultMaxRetries
	return GuardConfig{
		Timeout:       DefaultTimeout,
		MaxInputChars: DefaultMaxInputChars,
		Retry:         retry,
	}
}

// GuardedEmbedder enforces the provider contract around any Embedder:
// a deadline per call, bounded input, throttling, retry, and normalized
// non-degenerate output of the expected size. Every failure it returns is
// an EmbeddingUnavailable error.
type GuardedEmbedder struct {
	inner   Embedder
	cfg     GuardConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Verify interface implementation at compile time
var _ Embedder = (*GuardedEmbedder)(nil)

// NewGuardedEmbedder wraps inner with cfg.
func NewGuardedEmbedder(inner Embedder, cfg GuardConfig) *GuardedEmbedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}

	g := &GuardedEmbedder{
		inner:  inner,
		cfg:    cfg,
		logger: slog.Default().With("component", "embed"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

// Embed generates one guarded embedding.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates guarded embeddings for texts.
func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	bounded := make([]string, len(texts))
	for i, t := range texts {
		bounded[i] = Truncate(t, g.cfg.MaxInputChars)
	}

	retry := g.cfg.Retry
	retry.ShouldRetry = isTransient

	start := time.Now()
	attempt := 0
	vecs, err := merrors.RetryWithResult(ctx, retry, func() ([][]float32, error) {
		attempt++
		return g.call(ctx, bounded)
	})
	if err != nil {
		g.logger.Warn("embedding_failed",
			slog.String("model", g.inner.ModelName()),
			slog.Int("texts", len(texts)),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()))
		if merrors.HasCode(err, merrors.ErrCodeEmbeddingUnavailable) {
			return nil, err
		}
		return nil, merrors.EmbeddingUnavailable("embedding provider failed", err).
			WithDetail("model", g.inner.ModelName())
	}

	g.logger.Debug("embedding_completed",
		slog.Int("texts", len(texts)),
		slog.Int("attempts", attempt),
		slog.Duration("duration", time.Since(start)))

	return vecs, nil
}

// call performs one attempt under the per-call deadline and validates output.
func (g *GuardedEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	vecs, err := g.inner.EmbedBatch(callCtx, texts)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, merrors.New(merrors.ErrCodeNetworkTimeout,
				fmt.Sprintf("embedding call exceeded %s", g.cfg.Timeout), err)
		}
		return nil, merrors.New(merrors.ErrCodeNetworkUnavailable, "embedding call failed", err)
	}

	if len(vecs) != len(texts) {
		return nil, merrors.EmbeddingUnavailable(
			fmt.Sprintf("provider returned %d vectors for %d texts", len(vecs), len(texts)), nil)
	}

	dims := g.inner.Dimensions()
	for i, v := range vecs {
		if IsZero(v) {
			return nil, merrors.EmbeddingUnavailable(
				fmt.Sprintf("provider returned a degenerate vector for text %d", i), nil)
		}
		if dims > 0 && len(v) != dims {
			return nil, merrors.EmbeddingUnavailable(
				fmt.Sprintf("provider returned %d dimensions, expected %d", len(v), dims), nil).
				WithDetail("model", g.inner.ModelName())
		}
		vecs[i] = Normalize(v)
	}

	return vecs, nil
}

// isTransient retries network-class failures only. Degenerate output and
// caller cancellation are final.
func isTransient(err error) bool {
	return merrors.HasCode(err, merrors.ErrCodeNetworkTimeout) ||
		merrors.HasCode(err, merrors.ErrCodeNetworkUnavailable)
}

// Truncate limits s to maxChars runes.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

// Dimensions returns the inner embedder's dimension.
func (g *GuardedEmbedder) Dimensions() int {
	return g.inner.Dimensions()
}

// ModelName returns the inner embedder's model.
func (g *GuardedEmbedder) ModelName() string {
	return g.inner.ModelName()
}

// Available checks the inner embedder under the call deadline.
func (g *GuardedEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.inner.Available(ctx)
}

// Close closes the inner embedder.
func (g *GuardedEmbedder) Close() error {
	return g.inner.Close()
}
