package reranker

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const (
	preferredMinLength = 100
	preferredMaxLength = 2000
	lengthBoost        = 1.1
	titleMatchBoost    = 1.2
)

// DefaultContentTypeWeights favors curated answers over raw conversations.
var DefaultContentTypeWeights = map[vectorstore.ContentType]float64{
	vectorstore.ContentTypeFAQ:           1.2,
	vectorstore.ContentTypeKnowledgeBase: 1.15,
	vectorstore.ContentTypeProduct:       1.1,
	vectorstore.ContentTypeContent:       1.05,
	vectorstore.ContentTypeSupportTicket: 0.95,
	vectorstore.ContentTypeConversation:  0.9,
}

// HybridReranker scales the retrieval score by heuristics:
//   - ×1.1 for content between 100 and 2000 bytes
//   - ×1.2 when the title contains the query (case-insensitive)
//   - ×weight of the document's content type (1.0 when unlisted)
type HybridReranker struct {
	weights map[vectorstore.ContentType]float64
}

// NewHybridReranker creates a hybrid reranker. nil weights uses
// DefaultContentTypeWeights.
func NewHybridReranker(weights map[vectorstore.ContentType]float64) *HybridReranker {
	if weights == nil {
		weights = DefaultContentTypeWeights
	}
	return &HybridReranker{weights: weights}
}

func (r *HybridReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	q := strings.ToLower(strings.TrimSpace(query))

	scored := make([]ScoredDocument, len(docs))
	for i, d := range docs {
		score := d.Score
		if n := len(d.Content); n >= preferredMinLength && n <= preferredMaxLength {
			score *= lengthBoost
		}
		if q != "" && strings.Contains(strings.ToLower(d.Title), q) {
			score *= titleMatchBoost
		}
		if w, ok := r.weights[d.ContentType]; ok {
			score *= w
		}
		scored[i] = ScoredDocument{Document: d, RerankerScore: score, OriginalRank: i}
	}
	return rank(scored, topK), nil
}

func (r *HybridReranker) Name() Strategy { return StrategyHybrid }

func (r *HybridReranker) Close() error { return nil }
