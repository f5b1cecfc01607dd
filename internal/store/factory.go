package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/medrag/internal/config"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// Backend names a vector index implementation.
type Backend string

const (
	// BackendQdrant uses a Qdrant server over gRPC (default).
	BackendQdrant Backend = "qdrant"

	// BackendBadger uses a local BadgerDB directory with exact search.
	BackendBadger Backend = "badger"

	// BackendMemory uses an in-process HNSW graph; nothing is persisted.
	BackendMemory Backend = "memory"
)

// Default file names under the data directory.
const (
	DefaultVectorDir   = "vectors"
	DefaultKeywordFile = "keyword.gob"
)

// NewVectorIndex opens the configured backend for vectors of size dims.
// root anchors a relative data directory.
func NewVectorIndex(cfg *config.Config, root string, dims int) (VectorIndex, error) {
	vs := cfg.VectorStore

	switch Backend(strings.ToLower(vs.Backend)) {
	case BackendQdrant, "":
		return NewQdrantIndex(QdrantConfig{
			Host:       vs.QdrantHost,
			Port:       vs.QdrantPort,
			APIKey:     vs.QdrantAPIKey,
			TLS:        vs.QdrantTLS,
			Collection: vs.Collection,
			Dimensions: dims,
		})

	case BackendBadger:
		path := vs.Path
		if path == "" {
			path = filepath.Join(DefaultVectorDir, vs.Collection)
		}
		return OpenBadgerIndex(cfg.ResolvePath(root, path), dims)

	case BackendMemory:
		return NewMemoryIndex(dims), nil

	default:
		return nil, merrors.ConfigError(fmt.Sprintf("unknown vector backend: %s", vs.Backend), nil).
			WithSuggestion("valid options: qdrant, badger, memory")
	}
}

// KeywordConfigFrom maps the keyword section of cfg.
func KeywordConfigFrom(cfg *config.Config) KeywordConfig {
	return KeywordConfig{
		MaxFeatures: cfg.Keyword.MaxFeatures,
		MinNGram:    cfg.Keyword.MinNGram,
		MaxNGram:    cfg.Keyword.MaxNGram,
	}
}

// KeywordPath returns where the keyword corpus is persisted for cfg.
func KeywordPath(cfg *config.Config, root string) string {
	return cfg.ResolvePath(root, DefaultKeywordFile)
}
