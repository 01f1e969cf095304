package reranker

import "context"

// SemanticReranker keeps retrieval similarity as the rerank score.
type SemanticReranker struct {
	name Strategy
}

// NewSemanticReranker creates a passthrough reranker.
func NewSemanticReranker() *SemanticReranker {
	return &SemanticReranker{name: StrategySemantic}
}

// NewCrossEncoderReranker returns the cross-encoder placeholder. No model is
// wired yet, so it scores exactly like the semantic reranker.
func NewCrossEncoderReranker() *SemanticReranker {
	return &SemanticReranker{name: StrategyCrossEncoder}
}

func (r *SemanticReranker) Rerank(ctx context.Context, _ string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	scored := make([]ScoredDocument, len(docs))
	for i, d := range docs {
		scored[i] = ScoredDocument{Document: d, RerankerScore: d.Score, OriginalRank: i}
	}
	return rank(scored, topK), nil
}

func (r *SemanticReranker) Name() Strategy { return r.name }

func (r *SemanticReranker) Close() error { return nil }
