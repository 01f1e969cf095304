// Package reranker reorders search candidates after retrieval.
package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// Strategy names a reranking algorithm.
type Strategy string

const (
	// StrategySemantic keeps the retrieval similarity as the score.
	StrategySemantic Strategy = "semantic"
	// StrategyCrossEncoder is reserved for a cross-encoder model and
	// currently scores like StrategySemantic.
	StrategyCrossEncoder Strategy = "cross_encoder"
	// StrategyHybrid applies length, title and content type heuristics.
	StrategyHybrid Strategy = "hybrid"
	// StrategyTermOverlap blends similarity with query term overlap.
	StrategyTermOverlap Strategy = "term_overlap"
)

var (
	// ErrNilContext is returned when a nil context is passed to Rerank.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrUnknownStrategy is returned by New for unsupported strategies.
	ErrUnknownStrategy = errors.New("unknown rerank strategy")
)

// Document is a rerank candidate.
type Document struct {
	ID          string
	Title       string
	Content     string
	ContentType vectorstore.ContentType
	// Score is the score assigned by retrieval.
	Score float64
}

// ScoredDocument is a reranked candidate.
type ScoredDocument struct {
	Document
	RerankerScore float64
	// OriginalRank is the 0-based position in the input.
	OriginalRank int
}

// Reranker reorders documents by relevance to a query.
type Reranker interface {
	// Rerank returns at most topK documents sorted by RerankerScore
	// descending. topK <= 0 keeps every document.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)

	// Name returns the strategy implemented.
	Name() Strategy

	// Close releases any resources.
	Close() error
}

// New returns the reranker for a strategy.
func New(strategy Strategy) (Reranker, error) {
	switch strategy {
	case StrategySemantic, "":
		return NewSemanticReranker(), nil
	case StrategyCrossEncoder:
		return NewCrossEncoderReranker(), nil
	case StrategyHybrid:
		return NewHybridReranker(nil), nil
	case StrategyTermOverlap:
		return NewSimpleReranker(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// rank sorts scored documents by RerankerScore, keeping input order on
// ties, and truncates to topK.
func rank(scored []ScoredDocument, topK int) []ScoredDocument {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankerScore > scored[j].RerankerScore
	})
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}
