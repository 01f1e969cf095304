package vectorstore

import (
	"fmt"
	"strconv"
	"time"
)

// ContentType classifies what kind of tenant content a document holds.
type ContentType string

const (
	ContentTypeProduct       ContentType = "product"
	ContentTypeCustomer      ContentType = "customer"
	ContentTypeOrder         ContentType = "order"
	ContentTypeContent       ContentType = "content"
	ContentTypeFAQ           ContentType = "faq"
	ContentTypeKnowledgeBase ContentType = "knowledge_base"
	ContentTypeReview        ContentType = "review"
	ContentTypeMarketing     ContentType = "marketing"
	ContentTypeSupportTicket ContentType = "support_ticket"
	ContentTypeConversation  ContentType = "conversation"
)

// ContentTypes lists every known content type in a stable order.
var ContentTypes = []ContentType{
	ContentTypeProduct,
	ContentTypeCustomer,
	ContentTypeOrder,
	ContentTypeContent,
	ContentTypeFAQ,
	ContentTypeKnowledgeBase,
	ContentTypeReview,
	ContentTypeMarketing,
	ContentTypeSupportTicket,
	ContentTypeConversation,
}

// ParseContentType validates s and returns it as a ContentType.
func ParseContentType(s string) (ContentType, error) {
	for _, ct := range ContentTypes {
		if string(ct) == s {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidConfig, s)
}

// Status is the lifecycle state of a document.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Metadata is a free-form key/value bag attached to a document.
//
// Recognized keys: category, rating, price, sku, brand, email, segment,
// lifetime_value, author, tags, difficulty, language, source_url, version.
type Metadata map[string]any

// String returns the value for key as a string, or "" when absent.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the numeric value for key. Strings are parsed.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Time returns the time value for key. RFC 3339 strings are parsed.
func (m Metadata) Time(key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is a stored unit of content: either a parent document or one of
// its chunks.
//
// A parent has an empty ParentID, ChunkIndex 0 and ChunkCount equal to the
// number of chunks produced at indexing time. A chunk carries its parent's
// id and the same TenantID and ContentType.
type Document struct {
	ID          string      `json:"id"`
	Content     string      `json:"content"`
	Title       string      `json:"title,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	ContentType ContentType `json:"content_type"`
	Embedding   []float32   `json:"embedding,omitempty"`
	Metadata    Metadata    `json:"metadata,omitempty"`
	TenantID    string      `json:"tenant_id"`
	SourceID    string      `json:"source_id,omitempty"`
	SourceURL   string      `json:"source_url,omitempty"`
	Language    string      `json:"language,omitempty"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ParentID    string      `json:"parent_id,omitempty"`
	ChunkIndex  int         `json:"chunk_index"`
	ChunkCount  int         `json:"chunk_count"`
}

// IsChunk reports whether d is a child chunk of another document.
func (d *Document) IsChunk() bool {
	return d.ParentID != ""
}

// Clone returns a copy of d that shares no mutable state with it.
func (d *Document) Clone() *Document {
	c := *d
	if d.Embedding != nil {
		c.Embedding = append([]float32(nil), d.Embedding...)
	}
	c.Metadata = d.Metadata.Clone()
	return &c
}

// SideRecord holds typed fields extracted from metadata for content types
// that carry structured attributes (products, customers, knowledge).
type SideRecord struct {
	DocumentID  string         `json:"document_id"`
	ContentType ContentType    `json:"content_type"`
	Fields      map[string]any `json:"fields"`
}

// Cluster groups similar documents of one tenant and content type.
type Cluster struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	ContentType       ContentType `json:"content_type"`
	TenantID          string      `json:"tenant_id"`
	Centroid          []float32   `json:"centroid"`
	MemberCount       int         `json:"member_count"`
	AverageSimilarity float64     `json:"average_similarity"`
	Metadata          Metadata    `json:"metadata,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Clone returns a copy of c that shares no mutable state with it.
func (c *Cluster) Clone() *Cluster {
	out := *c
	out.Centroid = append([]float32(nil), c.Centroid...)
	out.Metadata = c.Metadata.Clone()
	return &out
}

// Membership links a document to the one cluster it belongs to.
type Membership struct {
	DocumentID           string    `json:"document_id"`
	ClusterID            string    `json:"cluster_id"`
	SimilarityToCentroid float64   `json:"similarity_to_centroid"`
	AssignedAt           time.Time `json:"assigned_at"`
}

// ScoredDocument is a document returned by a similarity query.
type ScoredDocument struct {
	Document *Document
	// Similarity is the cosine similarity to the query embedding.
	Similarity float64
	// TextScore is the normalized lexical score, set by HybridSearch.
	TextScore float64
	// CombinedScore is the weighted hybrid score, set by HybridSearch.
	CombinedScore float64
	// ClusterID is set by SearchClusters.
	ClusterID string
}

// DocumentFilter selects documents for List and Count.
// Zero-valued fields do not filter.
type DocumentFilter struct {
	TenantID    string
	ContentType ContentType
	ParentID    string
	ParentsOnly bool
	Limit       int
}

// Matches reports whether d passes the filter, ignoring Limit.
func (f DocumentFilter) Matches(d *Document) bool {
	if f.TenantID != "" && d.TenantID != f.TenantID {
		return false
	}
	if f.ContentType != "" && d.ContentType != f.ContentType {
		return false
	}
	if f.ParentID != "" && d.ParentID != f.ParentID {
		return false
	}
	if f.ParentsOnly && d.IsChunk() {
		return false
	}
	return true
}

// ClusterFilter selects clusters. Zero-valued fields do not filter.
type ClusterFilter struct {
	TenantID    string
	ContentType ContentType
}

// Matches reports whether c passes the filter.
func (f ClusterFilter) Matches(c *Cluster) bool {
	if f.TenantID != "" && c.TenantID != f.TenantID {
		return false
	}
	if f.ContentType != "" && c.ContentType != f.ContentType {
		return false
	}
	return true
}

// VectorQuery is a nearest-neighbor query over document embeddings.
type VectorQuery struct {
	Embedding    []float32
	TenantID     string
	ContentTypes []ContentType
	// Threshold drops results with similarity below it.
	Threshold float64
	Count     int
	// Filters are metadata equality filters compared as strings.
	Filters map[string]string
	// ExcludeChunks restricts results to parent documents.
	ExcludeChunks bool
}

// Matches reports whether d passes the non-vector parts of the query.
func (q VectorQuery) Matches(d *Document) bool {
	if q.TenantID != "" && d.TenantID != q.TenantID {
		return false
	}
	if len(q.ContentTypes) > 0 && !containsContentType(q.ContentTypes, d.ContentType) {
		return false
	}
	if q.ExcludeChunks && d.IsChunk() {
		return false
	}
	for k, v := range q.Filters {
		if d.Metadata.String(k) != v {
			return false
		}
	}
	return true
}

// HybridQuery combines vector similarity with a lexical text score.
type HybridQuery struct {
	VectorQuery
	Text         string
	VectorWeight float64
	TextWeight   float64
}

// ClusterQuery first selects the nearest clusters, then the nearest
// documents inside each of them.
type ClusterQuery struct {
	Embedding      []float32
	TenantID       string
	ContentTypes   []ContentType
	ClusterCount   int
	DocsPerCluster int
	Threshold      float64
}

func containsContentType(types []ContentType, ct ContentType) bool {
	for _, t := range types {
		if t == ct {
			return true
		}
	}
	return false
}
