// Package indexer turns raw content into stored, embedded documents.
//
// A document longer than the chunk size is split on sentence boundaries
// into overlapping chunks. Every chunk is embedded with its document's title
// and summary as context in one batch call. The parent record keeps the full
// content and the first chunk's vector; chunks 1..n-1 are stored as child
// records pointing at the parent.
package indexer
