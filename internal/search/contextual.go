package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
)

// followUpWords mark a query as continuing the previous turn.
var followUpWords = map[string]bool{
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "they": true, "them": true, "their": true, "one": true,
	"ones": true, "also": true, "too": true, "more": true, "another": true,
	"else": true, "same": true, "other": true, "instead": true, "and": true,
}

// IsFollowUp reports whether query reads as a continuation of an earlier
// turn, such as "what about the blue one" or "is it waterproof".
func IsFollowUp(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.HasPrefix(q, "what about") || strings.HasPrefix(q, "how about") {
		return true
	}
	for _, w := range strings.FieldsFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		if followUpWords[w] {
			return true
		}
	}
	return false
}

// ContextualSearch searches with query, prefixed by the last entry of
// history when query is a follow-up. history is ordered oldest first.
func (e *Engine) ContextualSearch(ctx context.Context, query string, history []string, opts Options) (*Response, error) {
	if len(history) > 0 && IsFollowUp(query) {
		if prev := strings.TrimSpace(history[len(history)-1]); prev != "" {
			query = prev + " " + query
		}
	}
	return e.Search(ctx, query, opts)
}

// MultiModalSearch runs a search and keeps results whose embedding is at
// least MinReferenceSimilarity to the reference document's embedding.
// Results without an embedding are dropped.
func (e *Engine) MultiModalSearch(ctx context.Context, query string, opts Options, mm MultiModalOptions) (*Response, error) {
	ref, err := e.store.GetDocument(ctx, mm.ReferenceDocumentID)
	if err != nil {
		return nil, fmt.Errorf("reference document %s: %w", mm.ReferenceDocumentID, err)
	}

	resp, err := e.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	kept := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		doc := r.Document
		if mm.ExcludeReference && (doc.ID == ref.ID || doc.ParentID == ref.ID) {
			continue
		}
		if len(doc.Embedding) == 0 || len(doc.Embedding) != len(ref.Embedding) {
			continue
		}
		if vecmath.CosineSimilarity(doc.Embedding, ref.Embedding) < mm.MinReferenceSimilarity {
			continue
		}
		kept = append(kept, r)
	}
	resp.Results = kept
	resp.Analytics.Returned = len(kept)
	return resp, nil
}
