// Package store provides the two retrieval indexes: the vector index
// capability (Qdrant, Badger and in-memory HNSW backends) and the TF-IDF
// keyword index rebuilt from the vector index's corpus.
package store

import (
	"context"
	"fmt"
	"sort"
)

// Payload field names shared by every backend.
const (
	FieldContent     = "content"
	FieldFilename    = "filename"
	FieldFileHash    = "file_hash"
	FieldUserID      = "user_id"
	FieldChunkID     = "chunk_id"
	FieldTotalChunks = "total_chunks"
	FieldIndexedAt   = "indexed_at"
)

// Point is a vector with its identifier and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Record is a stored point as returned by Scroll (vectors are not returned).
type Record struct {
	ID      string
	Payload map[string]any
}

// ScoredPoint is a search hit with its cosine similarity.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Content returns the payload's content field.
func (r Record) Content() string {
	return PayloadString(r.Payload, FieldContent)
}

// Content returns the payload's content field.
func (p ScoredPoint) Content() string {
	return PayloadString(p.Payload, FieldContent)
}

// Filter is a conjunctive equality filter over payload fields.
// A nil or empty filter matches everything.
type Filter map[string]any

// Match reports whether payload satisfies every condition in f.
func (f Filter) Match(payload map[string]any) bool {
	for k, want := range f {
		got, ok := payload[k]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// With returns a copy of f with key set to value.
func (f Filter) With(key string, value any) Filter {
	out := make(Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = value
	return out
}

// Empty reports whether f has no conditions.
func (f Filter) Empty() bool {
	return len(f) == 0
}

// Keys returns the filter's field names in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// VectorIndex is the vector store capability the indexer and ranker use.
// Implementations ensure their collection exists before the first operation
// and map store failures to IndexUnavailable.
type VectorIndex interface {
	// EnsureCollection creates the collection with cosine distance if absent.
	EnsureCollection(ctx context.Context) error

	// Upsert inserts or overwrites points by id.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to limit points matching filter, most similar first.
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)

	// Scroll pages through points matching filter. An empty next cursor
	// ends the pass.
	Scroll(ctx context.Context, filter Filter, limit int, cursor string) ([]Record, string, error)

	// Delete removes every point matching filter. An empty filter is refused.
	Delete(ctx context.Context, filter Filter) error

	// Count returns the number of points matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Dimensions returns the collection's vector size.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (collection was built with another embedding model)", e.Expected, e.Got)
}
