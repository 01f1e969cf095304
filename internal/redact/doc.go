// Package redact removes credentials and payment card numbers from tenant
// content before it is embedded and stored.
//
// Matches are replaced in place with a marker so chunk boundaries and
// embeddings never see the original value. Only rule ids and offsets are
// reported back; the matched text is never kept.
package redact
