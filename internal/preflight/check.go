package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Aman-CERP/medrag/internal/config"
	"github.com/Aman-CERP/medrag/internal/embed"
	"github.com/Aman-CERP/medrag/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the lowercase name of the status.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target names what RunAll inspects. Nil components are skipped.
type Target struct {
	DataDir  string
	Config   *config.Config
	Embedder embed.Embedder
	Vectors  store.VectorIndex
	Keyword  *store.KeywordIndex
}

// Checker performs preflight validation checks.
type Checker struct {
	probeTimeout time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithProbeTimeout bounds the embedder and vector index probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.probeTimeout = d
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{probeTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every applicable check in a fixed order.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	var results []CheckResult

	if t.DataDir != "" {
		results = append(results, c.CheckWritePermissions(t.DataDir))
		results = append(results, c.CheckDiskSpace(t.DataDir))
	}
	results = append(results, c.CheckFileDescriptors())

	if t.Config != nil {
		results = append(results, c.CheckConfig(t.Config))
	}
	if t.Embedder != nil {
		results = append(results, c.CheckEmbedder(ctx, t.Embedder))
	}

	points := -1
	if t.Vectors != nil {
		var r CheckResult
		r, points = c.CheckVectorIndex(ctx, t.Vectors)
		results = append(results, r)
	}
	if t.Keyword != nil {
		results = append(results, c.CheckKeywordIndex(t.Keyword, points))
	}

	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckWritePermissions checks that the data directory can be created and
// written to.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
		Details:  dir,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	f, err := os.CreateTemp(dir, ".medrag-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckConfig validates the merged configuration.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}

	if err := cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if cfg.WeightSumDeviates() {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("fusion weights sum to %.2f, not 1.0",
			cfg.Search.VectorWeight+cfg.Search.KeywordWeight)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s embeddings, %s vector store", cfg.Embeddings.Provider, cfg.VectorStore.Backend)
	return result
}

// CheckEmbedder probes the embedding provider.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  fmt.Sprintf("model %s, %d dimensions", e.ModelName(), e.Dimensions()),
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if !e.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not reachable", e.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = e.ModelName()
	return result
}

// CheckVectorIndex counts the stored points. It returns -1 points when the
// index cannot be queried.
func (c *Checker) CheckVectorIndex(ctx context.Context, v store.VectorIndex) (CheckResult, int) {
	result := CheckResult{
		Name:     "vector_index",
		Required: true,
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	n, err := v.Count(ctx, store.Filter{})
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("count failed: %v", err)
		return result, -1
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d points, %d dimensions", n, v.Dimensions())
	return result, n
}

// CheckKeywordIndex compares the keyword corpus with the vector point count.
// A mismatch is a warning; "medrag reindex" rebuilds the corpus.
func (c *Checker) CheckKeywordIndex(k *store.KeywordIndex, vectorPoints int) CheckResult {
	result := CheckResult{
		Name:     "keyword_index",
		Required: false,
		Message:  fmt.Sprintf("%d documents, %d terms", k.Len(), k.VocabularySize()),
	}
	if built := k.BuiltAt(); !built.IsZero() {
		result.Details = "built " + built.Format(time.RFC3339)
	}

	if vectorPoints >= 0 && k.Len() != vectorPoints {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d documents but %d vector points", k.Len(), vectorPoints)
		result.Details = "Run 'medrag reindex' to rebuild the keyword index"
		return result
	}

	result.Status = StatusPass
	return result
}

// Failure reports a component that could not be opened for checking.
func Failure(name string, err error) CheckResult {
	return CheckResult{
		Name:     name,
		Status:   StatusFail,
		Message:  err.Error(),
		Required: true,
	}
}
