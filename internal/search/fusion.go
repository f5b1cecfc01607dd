package search

import (
	"sort"

	"github.com/Aman-CERP/medrag/internal/store"
)

// Fuse combines vector and keyword hits into one ranking.
//
// Algorithm:
//
//	vector hit:  combined = similarity * w.Vector + Σ boost bonuses
//	keyword hit: combined += score * w.Keyword   (new entry if absent)
//
// Entries keep insertion order (vector hits first) and are stable-sorted by
// combined score descending, so ties favour vector-ranked items. Boosts only
// apply to vector hits. The result is not truncated.
func Fuse(vector []store.ScoredPoint, keyword []store.KeywordHit, w Weights, boosts []BoostRule) []FusedResult {
	// Return empty slice, not nil, for consistent API behavior.
	if len(vector) == 0 && len(keyword) == 0 {
		return []FusedResult{}
	}

	results := make([]FusedResult, 0, len(vector)+len(keyword))
	index := make(map[string]int, len(vector)+len(keyword))

	for _, hit := range vector {
		if _, seen := index[hit.ID]; seen {
			continue
		}
		content := hit.Content()
		r := FusedResult{
			ID:          hit.ID,
			Content:     content,
			Metadata:    hit.Payload,
			VectorScore: float64(hit.Score),
		}
		var bonus float64
		for _, b := range boosts {
			if v := b.Bonus(content); v != 0 {
				bonus += v
				r.Boosts = append(r.Boosts, b.Name())
			}
		}
		r.CombinedScore = r.VectorScore*w.Vector + bonus

		index[hit.ID] = len(results)
		results = append(results, r)
	}

	for _, hit := range keyword {
		if i, ok := index[hit.ID]; ok {
			results[i].KeywordScore = hit.Score
			results[i].CombinedScore += hit.Score * w.Keyword
			continue
		}
		index[hit.ID] = len(results)
		results = append(results, FusedResult{
			ID:            hit.ID,
			Content:       store.PayloadString(hit.Payload, store.FieldContent),
			Metadata:      hit.Payload,
			KeywordScore:  hit.Score,
			CombinedScore: hit.Score * w.Keyword,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	return results
}

// FilterKeywordHits keeps the hits whose stored payload matches filter.
func FilterKeywordHits(hits []store.KeywordHit, filter store.Filter) []store.KeywordHit {
	if filter.Empty() {
		return hits
	}
	kept := hits[:0:0]
	for _, h := range hits {
		if filter.Match(h.Payload) {
			kept = append(kept, h)
		}
	}
	return kept
}
