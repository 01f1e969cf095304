package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/blevesearch/bleve/v2"
)

// lexicalScores ranks docs against text with BM25 over a throwaway
// in-memory bleve index, returning scores scaled into [0, 1] by the best
// hit. Used by backends that only hold a candidate set in memory.
func lexicalScores(ctx context.Context, text string, docs []*Document) (map[string]float64, error) {
	if text == "" || len(docs) == 0 {
		return nil, nil
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating text index: %w", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, textDocument{Title: d.Title, Content: d.Content}); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", d.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("indexing candidates: %w", err)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), len(docs), 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	return normalizedScores(res), nil
}

// normalizedScores maps hit ids to their score divided by the best score.
func normalizedScores(res *bleve.SearchResult) map[string]float64 {
	scores := make(map[string]float64, len(res.Hits))
	best := 0.0
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
		best = math.Max(best, hit.Score)
	}
	if best > 0 {
		for id, score := range scores {
			scores[id] = score / best
		}
	}
	return scores
}
