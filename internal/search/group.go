package search

// FileGroup is the results of one source file, in ranking order.
type FileGroup struct {
	Filename  string        `json:"filename"`
	BestScore float64       `json:"best_score"`
	Results   []FusedResult `json:"results"`
}

// GroupByFilename groups results by their filename payload field. Groups
// appear in the order their first result was ranked; results without a
// filename share the "" group.
func GroupByFilename(results []FusedResult) []FileGroup {
	var groups []FileGroup
	index := make(map[string]int)

	for _, r := range results {
		name := r.Filename()
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, FileGroup{Filename: name, BestScore: r.CombinedScore})
		}
		g := &groups[i]
		g.Results = append(g.Results, r)
		if r.CombinedScore > g.BestScore {
			g.BestScore = r.CombinedScore
		}
	}
	return groups
}
