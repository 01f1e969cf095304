package reranker

import (
	"context"
	"strings"
	"unicode"
)

// SimpleReranker scores documents by the share of query terms they contain,
// combined with the retrieval score.
type SimpleReranker struct{}

// NewSimpleReranker creates a new SimpleReranker instance.
func NewSimpleReranker() *SimpleReranker {
	return &SimpleReranker{}
}

// Rerank blends retrieval score and query term overlap 50/50.
func (r *SimpleReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return fallbackRank(docs, topK), nil
	}

	const originalWeight = 0.5
	const overlapWeight = 0.5

	scored := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		overlap := calculateTermOverlap(queryTokens, tokenize(doc.Title+" "+doc.Content))
		scored[i] = ScoredDocument{
			Document:      doc,
			RerankerScore: originalWeight*doc.Score + overlapWeight*overlap,
			OriginalRank:  i,
		}
	}
	return rank(scored, topK), nil
}

// Name returns StrategyTermOverlap.
func (r *SimpleReranker) Name() Strategy {
	return StrategyTermOverlap
}

// Close closes the reranker. SimpleReranker has no resources to clean up.
func (r *SimpleReranker) Close() error {
	return nil
}

// tokenize splits text into lowercase terms, filtering out common stopwords.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})

	// Filter stopwords
	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

// isAlphanumeric returns true for letters, digits and underscore.
func isAlphanumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isStopword returns true if the token is a common English stopword.
func isStopword(token string) bool {
	return stopwords[token]
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
}

// calculateTermOverlap calculates the ratio of query terms found in document tokens.
// Returns a score between 0.0 and 1.0 representing term overlap percentage.
func calculateTermOverlap(queryTokens, docTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0.0
	}

	docTokenSet := make(map[string]bool)
	for _, token := range docTokens {
		docTokenSet[token] = true
	}

	matchCount := 0
	counted := make(map[string]bool)
	for _, queryToken := range queryTokens {
		if docTokenSet[queryToken] && !counted[queryToken] {
			matchCount++
			counted[queryToken] = true
		}
	}

	return float64(matchCount) / float64(len(queryTokens))
}

// fallbackRank returns documents ranked by original score when reranking cannot proceed.
func fallbackRank(docs []Document, topK int) []ScoredDocument {
	scored := make([]ScoredDocument, len(docs))
	for i, d := range docs {
		scored[i] = ScoredDocument{Document: d, RerankerScore: d.Score, OriginalRank: i}
	}
	return rank(scored, topK)
}
