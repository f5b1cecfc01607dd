package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/medrag/internal/store"
)

// --- Test Helpers ---

func vecHit(id string, score float32, content string) store.ScoredPoint {
	return store.ScoredPoint{ID: id, Score: score, Payload: map[string]any{
		store.FieldContent: content, store.FieldUserID: "u1",
	}}
}

func kwHit(id string, score float64, content, user string) store.KeywordHit {
	return store.KeywordHit{ID: id, Score: score, Payload: map[string]any{
		store.FieldContent: content, store.FieldUserID: user,
	}}
}

func ids(results []FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

// ============================================================================
// TS01: Weighted fusion
// ============================================================================

func TestFuse_WeightedSum(t *testing.T) {
	// Given: A in both lists, B vector-only, C keyword-only
	vector := []store.ScoredPoint{vecHit("A", 0.8, "fatigue"), vecHit("B", 0.6, "sleep")}
	keyword := []store.KeywordHit{kwHit("C", 0.9, "iron", "u1"), kwHit("A", 0.5, "fatigue", "u1")}

	// When: fusing without boosts
	results := Fuse(vector, keyword, DefaultWeights(), nil)

	// Then: each score follows the weighted sum
	require.Len(t, results, 3)
	byID := map[string]FusedResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.InDelta(t, 0.8*0.7+0.5*0.3, byID["A"].CombinedScore, 1e-6)
	assert.InDelta(t, 0.6*0.7, byID["B"].CombinedScore, 1e-6)
	assert.InDelta(t, 0.9*0.3, byID["C"].CombinedScore, 1e-6)
	assert.Zero(t, byID["C"].VectorScore)
	assert.Equal(t, "iron", byID["C"].Content, "keyword-only content comes from the snapshot payload")
	assert.Equal(t, []string{"A", "B", "C"}, ids(results))
}

func TestFuse_TiesFavourVectorHits(t *testing.T) {
	// Equal combined scores: the vector hit was inserted first.
	vector := []store.ScoredPoint{vecHit("V", 0.5, "x")}
	keyword := []store.KeywordHit{kwHit("K", 0.5, "y", "u1")}

	results := Fuse(vector, keyword, Weights{Vector: 0.5, Keyword: 0.5}, nil)

	assert.Equal(t, []string{"V", "K"}, ids(results))
}

func TestFuse_Empty(t *testing.T) {
	results := Fuse(nil, nil, DefaultWeights(), nil)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuse_DuplicateVectorHitsKeepFirst(t *testing.T) {
	results := Fuse([]store.ScoredPoint{vecHit("A", 0.9, "x"), vecHit("A", 0.1, "x")}, nil, DefaultWeights(), nil)

	require.Len(t, results, 1)
	assert.InDelta(t, 0.9*0.7, results[0].CombinedScore, 1e-6)
}

// ============================================================================
// TS02: Boosts
// ============================================================================

func TestFuse_BoostsApplyToVectorHitsOnly(t *testing.T) {
	vector := []store.ScoredPoint{vecHit("A", 0.5, "Glucose 110 mg/dL")}
	keyword := []store.KeywordHit{kwHit("B", 0.5, "Hemoglobin 13.5 g/dL", "u1")}

	results := Fuse(vector, keyword, DefaultWeights(), []BoostRule{MeasurementBoost()})

	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ID)
	assert.InDelta(t, 0.5*0.7+0.1, results[0].CombinedScore, 1e-6)
	assert.Equal(t, []string{MeasurementBoostName}, results[0].Boosts)
	assert.InDelta(t, 0.5*0.3, results[1].CombinedScore, 1e-6)
	assert.Empty(t, results[1].Boosts)
}

func TestFuse_BoostsAccumulate(t *testing.T) {
	flag := mustBoost(t, "abnormal", `(?i)\b(high|low)\b`, 0.05)
	vector := []store.ScoredPoint{vecHit("A", 0.5, "Glucose 180 mg/dL (HIGH)")}

	results := Fuse(vector, nil, DefaultWeights(), []BoostRule{MeasurementBoost(), flag})

	require.Len(t, results, 1)
	assert.InDelta(t, 0.5*0.7+0.15, results[0].CombinedScore, 1e-6)
	assert.Equal(t, []string{MeasurementBoostName, "abnormal"}, results[0].Boosts)
}

// ============================================================================
// TS03: Monotonicity
// ============================================================================

func TestFuse_RaisingVectorWeightNeverDemotesVectorLeaningDoc(t *testing.T) {
	// V leans on vector similarity, K on keyword similarity.
	vector := []store.ScoredPoint{vecHit("V", 0.7, "a"), vecHit("K", 0.2, "b")}
	keyword := []store.KeywordHit{kwHit("K", 0.9, "b", "u1"), kwHit("V", 0.1, "a", "u1")}

	rank := func(w float64) int {
		results := Fuse(vector, keyword, Weights{Vector: w, Keyword: 0.3}, nil)
		for i, r := range results {
			if r.ID == "V" {
				return i
			}
		}
		return -1
	}

	prev := rank(0.0)
	for _, w := range []float64{0.1, 0.2, 0.4, 0.7, 1.0} {
		r := rank(w)
		assert.LessOrEqual(t, r, prev, "weight %.1f", w)
		prev = r
	}
	assert.Equal(t, 0, prev)
}

// ============================================================================
// TS04: Keyword filtering
// ============================================================================

func TestFilterKeywordHits(t *testing.T) {
	hits := []store.KeywordHit{
		kwHit("A", 0.9, "x", "u1"),
		kwHit("B", 0.8, "x", "u2"),
		kwHit("C", 0.7, "x", "u1"),
	}

	kept := FilterKeywordHits(hits, store.Filter{store.FieldUserID: "u1"})
	assert.Equal(t, []string{"A", "C"}, []string{kept[0].ID, kept[1].ID})
	assert.Len(t, hits, 3, "input is not modified")

	assert.Len(t, FilterKeywordHits(hits, nil), 3)
}
