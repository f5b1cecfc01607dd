// Package search provides hybrid retrieval combining vector and TF-IDF keyword search.
// Results are fused with a weighted sum of the two similarities plus boost bonuses.
package search

import (
	"time"

	"github.com/Aman-CERP/medrag/internal/config"
	"github.com/Aman-CERP/medrag/internal/store"
)

// FusedResult is a ranked hit after fusion.
type FusedResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`

	// VectorScore is the cosine similarity of the vector hit (0 if keyword-only).
	VectorScore float64 `json:"vector_score"`

	// KeywordScore is the TF-IDF similarity (0 if vector-only).
	KeywordScore float64 `json:"keyword_score"`

	// CombinedScore orders results.
	CombinedScore float64 `json:"combined_score"`

	// Boosts names the boost rules that added a bonus.
	Boosts []string `json:"boosts,omitempty"`
}

// Filename returns the filename payload field.
func (r FusedResult) Filename() string {
	return store.PayloadString(r.Metadata, store.FieldFilename)
}

// Weights configures the relative importance of vector vs keyword scores.
type Weights struct {
	// Vector scales cosine similarity (default: 0.7).
	Vector float64

	// Keyword scales TF-IDF similarity (default: 0.3).
	Keyword float64
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Keyword: 0.3}
}

// Config configures the search engine.
type Config struct {
	Weights Weights

	// DefaultTopK is the result count callers use when none is given (default: 5).
	DefaultTopK int

	// MaxTopK caps top_k (default: 100).
	MaxTopK int

	// CandidateMultiplier sizes each sub-search as top_k * multiplier (default: 2).
	CandidateMultiplier int

	// Timeout bounds one search; 0 disables the bound.
	Timeout time.Duration

	// Boosts apply to vector hits in order. Empty disables boosting.
	Boosts []BoostRule
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		DefaultTopK:         5,
		MaxTopK:             100,
		CandidateMultiplier: 2,
		Timeout:             10 * time.Second,
		Boosts:              []BoostRule{MeasurementBoost()},
	}
}

// ConfigFrom maps the search section of cfg, compiling its boost rules.
func ConfigFrom(cfg *config.Config) (Config, error) {
	boosts, err := BoostsFrom(cfg.Search.Boosts)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Weights: Weights{
			Vector:  cfg.Search.VectorWeight,
			Keyword: cfg.Search.KeywordWeight,
		},
		DefaultTopK:         cfg.Search.DefaultTopK,
		MaxTopK:             cfg.Search.MaxTopK,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		Timeout:             cfg.SearchTimeout(),
		Boosts:              boosts,
	}, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = d.CandidateMultiplier
	}
	return c
}
