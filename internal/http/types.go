package http

import (
	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// DocumentRequest is the body of POST /api/v1/documents and
// PUT /api/v1/documents/:id.
type DocumentRequest struct {
	Content      string                  `json:"content"`
	Title        string                  `json:"title"`
	ContentType  vectorstore.ContentType `json:"content_type"`
	Metadata     vectorstore.Metadata    `json:"metadata,omitempty"`
	SourceID     string                  `json:"source_id,omitempty"`
	SourceURL    string                  `json:"source_url,omitempty"`
	Language     string                  `json:"language,omitempty"`
	MaxChunkSize int                     `json:"max_chunk_size,omitempty"`
	OverlapSize  int                     `json:"overlap_size,omitempty"`
	// DocumentID fixes the id of a new document.
	DocumentID string `json:"document_id,omitempty"`
}

func (r DocumentRequest) options(tenantID string) indexer.Options {
	return indexer.Options{
		TenantID:     tenantID,
		ContentType:  r.ContentType,
		Metadata:     r.Metadata,
		SourceID:     r.SourceID,
		SourceURL:    r.SourceURL,
		Language:     r.Language,
		MaxChunkSize: r.MaxChunkSize,
		OverlapSize:  r.OverlapSize,
		DocumentID:   r.DocumentID,
	}
}

// BatchRequest is the body of POST /api/v1/documents/batch.
type BatchRequest struct {
	Documents []DocumentRequest `json:"documents"`
}

// SearchRequest is the body of POST /api/v1/search. The tenant always
// comes from the X-Tenant-ID header.
type SearchRequest struct {
	Query string `json:"query"`
	search.Options
	// MultiModal restricts results to documents similar to a reference
	// document of the same tenant.
	MultiModal *search.MultiModalOptions `json:"multi_modal,omitempty"`
}

// ContextualSearchRequest is the body of POST /api/v1/search/contextual.
type ContextualSearchRequest struct {
	Query string `json:"query"`
	// History lists earlier queries, oldest first.
	History []string `json:"history"`
	search.Options
}

// ReindexRequest is the optional body of POST /api/v1/maintenance/reindex.
type ReindexRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
	DelayMS   int `json:"delay_ms,omitempty"`
	// Wait runs the reindex within the request instead of in the
	// background.
	Wait bool `json:"wait,omitempty"`
}

// RebalanceRequest is the optional body of POST /api/v1/maintenance/rebalance.
type RebalanceRequest struct {
	ContentType vectorstore.ContentType `json:"content_type,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string                    `json:"status"`
	Report *storemanager.HealthReport `json:"report,omitempty"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
