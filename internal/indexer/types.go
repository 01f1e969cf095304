package indexer

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/embedlife/internal/cluster"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// ClusterAssigner places indexed documents in clusters. ReassignDocument
// is used after a reindex so the clusters the document leaves or joins are
// recomputed from the new embedding.
type ClusterAssigner interface {
	AssignDocument(ctx context.Context, documentID string) (*cluster.Assignment, error)
	ReassignDocument(ctx context.Context, documentID string) (*cluster.Reassignment, error)
}

// Config tunes batch indexing.
type Config struct {
	// BatchSize is the number of documents indexed concurrently. Default: 10
	BatchSize int
	// BatchDelay separates consecutive sub-batches. Default: 1s
	BatchDelay time.Duration
	// MaxChunkSize is used when Options leaves it zero. Default: 1000
	MaxChunkSize int
	// OverlapSize is used when Options leaves it zero. Default: 100
	OverlapSize int
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:    10,
		BatchDelay:   time.Second,
		MaxChunkSize: DefaultMaxChunkSize,
		OverlapSize:  DefaultOverlapSize,
	}
}

// Options describe how one document is indexed.
type Options struct {
	TenantID    string                  `json:"tenant_id"`
	ContentType vectorstore.ContentType `json:"content_type"`
	Metadata    vectorstore.Metadata    `json:"metadata,omitempty"`
	SourceID    string                  `json:"source_id,omitempty"`
	SourceURL   string                  `json:"source_url,omitempty"`
	Language    string                  `json:"language,omitempty"`

	MaxChunkSize int `json:"max_chunk_size,omitempty"`
	OverlapSize  int `json:"overlap_size,omitempty"`

	// EnableClustering assigns the parent to a cluster after indexing.
	EnableClustering bool `json:"enable_clustering,omitempty"`

	// DocumentID fixes the parent id instead of generating one.
	DocumentID string `json:"document_id,omitempty"`

	createdAt time.Time
}

// Result reports the outcome of indexing one document.
type Result struct {
	DocumentID string `json:"document_id"`
	// ChunkIDs lists the stored chunk records in order. The parent doubles
	// as chunk 0.
	ChunkIDs    []string `json:"chunk_ids"`
	TotalChunks int      `json:"total_chunks"`
	TokenCount  int      `json:"token_count"`
	// ClusterID is set when clustering ran and succeeded.
	ClusterID string   `json:"cluster_id,omitempty"`
	Success   bool     `json:"success"`
	Errors    []string `json:"errors,omitempty"`
}

// BatchItem is one document of a batch.
type BatchItem struct {
	Content string  `json:"content"`
	Title   string  `json:"title"`
	Options Options `json:"options"`
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Processed     int       `json:"processed"`
	Failed        int       `json:"failed"`
	TotalChunks   int       `json:"total_chunks"`
	TotalTokens   int       `json:"total_tokens"`
	AverageChunks float64   `json:"average_chunks"`
	Errors        []string  `json:"errors,omitempty"`
	Results       []*Result `json:"results"`
}
