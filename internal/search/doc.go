// Package search answers similarity queries over indexed documents.
//
// A query is embedded once, executed with one of three strategies against
// the vector store, then post-filtered, boosted, optionally reranked and
// truncated:
//
//	vector   nearest neighbors with metadata filters
//	hybrid   vector similarity blended with a lexical score
//	cluster  nearest clusters first, then their closest members
//
// Responses are cached for a short TTL keyed by the query and its options.
// Writes do not invalidate the cache, so results may be stale for up to
// one TTL window.
package search
