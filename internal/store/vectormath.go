package store

import (
	"fmt"
	"math"
	"sort"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalizeVectorInPlace(out)
	return out
}

// dot is cosine similarity for unit vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func checkDimensions(expected int, vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != expected {
			mismatch := ErrDimensionMismatch{Expected: expected, Got: len(v)}
			return merrors.New(merrors.ErrCodeDimensionMismatch, mismatch.Error(), mismatch)
		}
	}
	return nil
}

func refuseEmptyFilter(f Filter) error {
	if f.Empty() {
		return merrors.ValidationError("delete requires a non-empty filter", nil).
			WithSuggestion("scope deletes by user_id and filename")
	}
	return nil
}

func errClosed(backend string) error {
	return merrors.IndexUnavailable(fmt.Sprintf("%s vector index is closed", backend), nil)
}

// sortScored orders hits by score descending, ties by id.
func sortScored(hits []ScoredPoint) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// topK keeps the limit best candidates of an exact scan.
type topK struct {
	limit int
	hits  []ScoredPoint
}

func (t *topK) offer(hit ScoredPoint) {
	t.hits = append(t.hits, hit)
	if len(t.hits) > 4*t.limit+64 {
		t.trim()
	}
}

func (t *topK) trim() {
	sortScored(t.hits)
	if len(t.hits) > t.limit {
		t.hits = t.hits[:t.limit]
	}
}

func (t *topK) result() []ScoredPoint {
	t.trim()
	return t.hits
}
