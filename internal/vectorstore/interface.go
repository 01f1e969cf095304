package vectorstore

import "context"

// DocumentStore persists documents and their side records.
type DocumentStore interface {
	// PutDocument inserts or replaces a document by ID.
	PutDocument(ctx context.Context, doc *Document) error

	// GetDocument returns ErrNotFound when the id is unknown.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// DeleteDocuments removes documents by id. Unknown ids are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error

	// ListDocuments returns documents matching the filter, oldest first.
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error)

	// CountDocuments returns the number of documents matching the filter.
	CountDocuments(ctx context.Context, filter DocumentFilter) (int, error)

	PutSideRecord(ctx context.Context, rec *SideRecord) error
	GetSideRecord(ctx context.Context, documentID string) (*SideRecord, error)
	DeleteSideRecord(ctx context.Context, documentID string) error
}

// ClusterStore persists clusters and document memberships.
type ClusterStore interface {
	PutCluster(ctx context.Context, c *Cluster) error
	GetCluster(ctx context.Context, id string) (*Cluster, error)
	ListClusters(ctx context.Context, filter ClusterFilter) ([]*Cluster, error)
	DeleteCluster(ctx context.Context, id string) error

	// SetMembership replaces any previous membership of the document.
	SetMembership(ctx context.Context, m *Membership) error

	// GetMembership returns ErrNotFound for unassigned documents.
	GetMembership(ctx context.Context, documentID string) (*Membership, error)

	// ListMemberships returns the members of a cluster. An empty clusterID
	// returns every membership in the store.
	ListMemberships(ctx context.Context, clusterID string) ([]*Membership, error)

	DeleteMembership(ctx context.Context, documentID string) error
}

// Searcher is the similarity query surface.
type Searcher interface {
	// SearchVectors returns documents ordered by descending similarity.
	SearchVectors(ctx context.Context, q VectorQuery) ([]ScoredDocument, error)

	// HybridSearch returns documents ordered by descending combined score.
	HybridSearch(ctx context.Context, q HybridQuery) ([]ScoredDocument, error)

	// SearchClusters returns documents from the nearest clusters, ordered
	// by descending similarity.
	SearchClusters(ctx context.Context, q ClusterQuery) ([]ScoredDocument, error)

	// NearestCluster returns the most similar cluster of the tenant and
	// content type, or ErrNotFound when none exist.
	NearestCluster(ctx context.Context, embedding []float32, tenantID string, contentType ContentType) (*Cluster, float64, error)
}

// Store is the full storage contract used by the engine.
//
// Implementations:
//   - MemoryStore: records in process memory, chromem-go similarity index,
//     bleve lexical index
//   - QdrantStore: Qdrant over gRPC
type Store interface {
	DocumentStore
	ClusterStore
	Searcher

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
