package search

import (
	"math"
	"sort"
)

// chunkDecay weights the n-th best chunk of a parent by chunkDecay^n.
const chunkDecay = 0.8

// AggregateChunks folds chunk hits into one result per parent document.
//
// Hits are grouped by parent id; a parent hit joins its own group. Each
// group scores Σ w·sim / Σ w over its best chunksPerParent hits, with
// w = 0.8^rank. A group with a single hit keeps that hit's similarity. The
// representative document is the parent when it was hit, otherwise the
// best chunk. Output is sorted by aggregated score.
func AggregateChunks(results []Result, chunksPerParent int) []Result {
	if chunksPerParent <= 0 {
		chunksPerParent = DefaultChunksPerParent
	}

	groups := make(map[string][]Result)
	var order []string
	for _, r := range results {
		if r.Document == nil {
			continue
		}
		key := r.Document.ID
		if r.Document.IsChunk() {
			key = r.Document.ParentID
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]Result, 0, len(order))
	for _, key := range order {
		hits := groups[key]
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].score() > hits[j].score()
		})

		rep := hits[0]
		for _, h := range hits {
			if h.Document.ID == key {
				rep = h
				break
			}
		}

		top := hits[:min(len(hits), chunksPerParent)]
		var num, den float64
		for rank, h := range top {
			w := math.Pow(chunkDecay, float64(rank))
			num += w * h.score()
			den += w
		}

		rep.CombinedScore = num / den
		rep.MatchedChunks = len(hits)
		out = append(out, rep)
	}

	sortResults(out)
	return out
}

// sortResults orders by score descending, keeping input order on ties.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score() > results[j].score()
	})
}
