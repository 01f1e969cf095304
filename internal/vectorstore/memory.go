package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
)

const backendMemory = "memory"

// errNoEmbeddingFunc is returned by the chromem embedding hook. Every
// record handed to chromem already carries its vector.
var errNoEmbeddingFunc = errors.New("memory store: embeddings must be precomputed")

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	// CollectionPrefix names the chromem collections. Default: "embedlife".
	CollectionPrefix string

	// Dimension, when non-zero, rejects embeddings of any other length
	// with ErrDimensionMismatch.
	Dimension int
}

// MemoryStore keeps records in process memory.
//
// Document and centroid vectors are mirrored into chromem-go collections
// which serve the nearest-neighbor queries, and document text is mirrored
// into an in-memory bleve index which provides the lexical half of hybrid
// search. chromem normalizes the vectors it holds, which does not change
// cosine similarity; the records themselves keep the original vectors.
//
// The mutex only protects the maps. No operation spans more than one call.
type MemoryStore struct {
	config MemoryConfig
	logger *zap.Logger

	mu          sync.RWMutex
	docs        map[string]*Document
	sideRecords map[string]*SideRecord
	clusters    map[string]*Cluster
	memberships map[string]*Membership

	db       *chromem.DB
	docIdx   *chromem.Collection
	clustIdx *chromem.Collection
	textIdx  bleve.Index
}

// textDocument is the shape indexed into bleve.
type textDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(config MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CollectionPrefix == "" {
		config.CollectionPrefix = "embedlife"
	}
	if config.Dimension < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidConfig, config.Dimension)
	}

	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	}

	db := chromem.NewDB()
	docIdx, err := db.GetOrCreateCollection(config.CollectionPrefix+"_documents", nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating document index: %w", err)
	}
	clustIdx, err := db.GetOrCreateCollection(config.CollectionPrefix+"_clusters", nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating cluster index: %w", err)
	}

	textIdx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating text index: %w", err)
	}

	return &MemoryStore{
		config:      config,
		logger:      logger,
		docs:        make(map[string]*Document),
		sideRecords: make(map[string]*SideRecord),
		clusters:    make(map[string]*Cluster),
		memberships: make(map[string]*Membership),
		db:          db,
		docIdx:      docIdx,
		clustIdx:    clustIdx,
		textIdx:     textIdx,
	}, nil
}

// PutDocument inserts or replaces a document.
func (s *MemoryStore) PutDocument(ctx context.Context, doc *Document) (err error) {
	ctx, span := tracer.Start(ctx, "MemoryStore.PutDocument")
	defer span.End()
	defer func(start time.Time) { observe(backendMemory, "put_document", start, err) }(time.Now())

	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", ErrInvalidConfig)
	}
	if err := s.checkDimension(doc.Embedding); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("document_id", doc.ID))

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := doc.Clone()
	if stored.Status == "" {
		stored.Status = StatusActive
	}

	if hasMagnitude(stored.Embedding) {
		err = s.docIdx.AddDocument(ctx, chromem.Document{
			ID:        stored.ID,
			Content:   stored.Content,
			Metadata:  indexMetadata(stored),
			Embedding: append([]float32(nil), stored.Embedding...),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("indexing document %s: %w", stored.ID, err)
		}
	} else if _, indexed := s.docs[stored.ID]; indexed {
		// The replaced version may have had an embedding.
		_ = s.docIdx.Delete(ctx, nil, nil, stored.ID)
	}

	if err = s.textIdx.Index(stored.ID, textDocument{Title: stored.Title, Content: stored.Content}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("indexing document text %s: %w", stored.ID, err)
	}

	s.docs[stored.ID] = stored
	DocumentsStored.Set(float64(len(s.docs)))
	return nil
}

// GetDocument returns a copy of the document with the given id.
func (s *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc.Clone(), nil
}

// DeleteDocuments removes documents by id. Side records and memberships
// are left to the caller.
func (s *MemoryStore) DeleteDocuments(ctx context.Context, ids []string) (err error) {
	defer func(start time.Time) { observe(backendMemory, "delete_documents", start, err) }(time.Now())

	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexed := make([]string, 0, len(ids))
	for _, id := range ids {
		doc, ok := s.docs[id]
		if !ok {
			continue
		}
		if hasMagnitude(doc.Embedding) {
			indexed = append(indexed, id)
		}
		if err := s.textIdx.Delete(id); err != nil {
			s.logger.Warn("removing document from text index failed", zap.String("document_id", id), zap.Error(err))
		}
		delete(s.docs, id)
	}

	if len(indexed) > 0 {
		if err = s.docIdx.Delete(ctx, nil, nil, indexed...); err != nil {
			return fmt.Errorf("removing documents from vector index: %w", err)
		}
	}

	DocumentsStored.Set(float64(len(s.docs)))
	return nil
}

// ListDocuments returns matching documents ordered by creation time.
func (s *MemoryStore) ListDocuments(_ context.Context, filter DocumentFilter) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Document, 0)
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	sortDocuments(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountDocuments returns the number of matching documents.
func (s *MemoryStore) CountDocuments(_ context.Context, filter DocumentFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PutSideRecord(_ context.Context, rec *SideRecord) error {
	if rec == nil || rec.DocumentID == "" {
		return fmt.Errorf("%w: side record document id required", ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	s.sideRecords[rec.DocumentID] = &SideRecord{DocumentID: rec.DocumentID, ContentType: rec.ContentType, Fields: fields}
	return nil
}

func (s *MemoryStore) GetSideRecord(_ context.Context, documentID string) (*SideRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sideRecords[documentID]
	if !ok {
		return nil, fmt.Errorf("side record %s: %w", documentID, ErrNotFound)
	}
	out := *rec
	out.Fields = make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		out.Fields[k] = v
	}
	return &out, nil
}

func (s *MemoryStore) DeleteSideRecord(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sideRecords, documentID)
	return nil
}

// PutCluster inserts or replaces a cluster and its centroid index entry.
func (s *MemoryStore) PutCluster(ctx context.Context, c *Cluster) (err error) {
	defer func(start time.Time) { observe(backendMemory, "put_cluster", start, err) }(time.Now())

	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: cluster id required", ErrInvalidConfig)
	}
	if err := s.checkDimension(c.Centroid); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := c.Clone()
	if hasMagnitude(stored.Centroid) {
		err = s.clustIdx.AddDocument(ctx, chromem.Document{
			ID:      stored.ID,
			Content: stored.Name,
			Metadata: map[string]string{
				"tenant_id":    stored.TenantID,
				"content_type": string(stored.ContentType),
			},
			Embedding: append([]float32(nil), stored.Centroid...),
		})
		if err != nil {
			return fmt.Errorf("indexing cluster %s: %w", stored.ID, err)
		}
	} else if _, ok := s.clusters[stored.ID]; ok {
		_ = s.clustIdx.Delete(ctx, nil, nil, stored.ID)
	}

	s.clusters[stored.ID] = stored
	return nil
}

func (s *MemoryStore) GetCluster(_ context.Context, id string) (*Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clusters[id]
	if !ok {
		return nil, fmt.Errorf("cluster %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

// ListClusters returns matching clusters ordered by creation time.
func (s *MemoryStore) ListClusters(_ context.Context, filter ClusterFilter) ([]*Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Cluster, 0)
	for _, c := range s.clusters {
		if filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteCluster removes the cluster and every membership pointing at it.
func (s *MemoryStore) DeleteCluster(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return nil
	}
	if hasMagnitude(c.Centroid) {
		if err := s.clustIdx.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("removing cluster %s from index: %w", id, err)
		}
	}
	delete(s.clusters, id)
	for docID, m := range s.memberships {
		if m.ClusterID == id {
			delete(s.memberships, docID)
		}
	}
	return nil
}

func (s *MemoryStore) SetMembership(_ context.Context, m *Membership) error {
	if m == nil || m.DocumentID == "" || m.ClusterID == "" {
		return fmt.Errorf("%w: membership requires document and cluster id", ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *m
	s.memberships[m.DocumentID] = &stored
	return nil
}

func (s *MemoryStore) GetMembership(_ context.Context, documentID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[documentID]
	if !ok {
		return nil, fmt.Errorf("membership of %s: %w", documentID, ErrNotFound)
	}
	out := *m
	return &out, nil
}

func (s *MemoryStore) ListMemberships(_ context.Context, clusterID string) ([]*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Membership, 0)
	for _, m := range s.memberships {
		if clusterID == "" || m.ClusterID == clusterID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *MemoryStore) DeleteMembership(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, documentID)
	return nil
}

// SearchVectors ranks documents by cosine similarity to the query.
func (s *MemoryStore) SearchVectors(ctx context.Context, q VectorQuery) (results []ScoredDocument, err error) {
	ctx, span := tracer.Start(ctx, "MemoryStore.SearchVectors")
	defer span.End()
	defer func(start time.Time) { observe(backendMemory, "search_vectors", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates, err := s.vectorCandidates(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results = make([]ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= q.Threshold {
			results = append(results, c)
		}
	}
	results = truncate(results, q.Count)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

// HybridSearch combines vector similarity with a BM25 score normalized by
// the best lexical hit.
func (s *MemoryStore) HybridSearch(ctx context.Context, q HybridQuery) (results []ScoredDocument, err error) {
	ctx, span := tracer.Start(ctx, "MemoryStore.HybridSearch")
	defer span.End()
	defer func(start time.Time) { observe(backendMemory, "hybrid_search", start, err) }(time.Now())

	vw, tw := q.VectorWeight, q.TextWeight
	if vw == 0 && tw == 0 {
		vw, tw = 0.7, 0.3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates, err := s.vectorCandidates(ctx, q.VectorQuery)
	if err != nil {
		return nil, err
	}

	textScores, err := s.textScores(ctx, q.Text)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("lexical scoring failed, using vector similarity only", zap.Error(err))
		textScores = nil
	}

	results = make([]ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		c.TextScore = textScores[c.Document.ID]
		c.CombinedScore = vw*c.Similarity + tw*c.TextScore
		if c.CombinedScore >= q.Threshold {
			results = append(results, c)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	results = truncate(results, q.Count)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

// SearchClusters picks the ClusterCount nearest centroids, then the
// DocsPerCluster most similar members of each.
func (s *MemoryStore) SearchClusters(ctx context.Context, q ClusterQuery) (results []ScoredDocument, err error) {
	ctx, span := tracer.Start(ctx, "MemoryStore.SearchClusters")
	defer span.End()
	defer func(start time.Time) { observe(backendMemory, "search_clusters", start, err) }(time.Now())

	clusterCount := q.ClusterCount
	if clusterCount <= 0 {
		clusterCount = 3
	}
	perCluster := q.DocsPerCluster
	if perCluster <= 0 {
		perCluster = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	nearest, err := s.nearestClusters(ctx, q.Embedding, q.TenantID, q.ContentTypes, clusterCount)
	if err != nil {
		return nil, err
	}

	members := make(map[string][]*Document, len(nearest))
	for docID, m := range s.memberships {
		if doc, ok := s.docs[docID]; ok {
			members[m.ClusterID] = append(members[m.ClusterID], doc)
		}
	}

	for _, c := range nearest {
		var hits []ScoredDocument
		for _, doc := range members[c.ID] {
			sim := vecmath.CosineSimilarity(q.Embedding, doc.Embedding)
			if sim < q.Threshold {
				continue
			}
			hits = append(hits, ScoredDocument{Document: doc.Clone(), Similarity: sim, ClusterID: c.ID})
		}
		sortBySimilarity(hits)
		results = append(results, truncate(hits, perCluster)...)
	}
	sortBySimilarity(results)

	span.SetAttributes(
		attribute.Int("clusters_searched", len(nearest)),
		attribute.Int("results_count", len(results)),
	)
	return results, nil
}

// NearestCluster returns the most similar cluster for the tenant and type.
func (s *MemoryStore) NearestCluster(ctx context.Context, embedding []float32, tenantID string, contentType ContentType) (*Cluster, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var types []ContentType
	if contentType != "" {
		types = []ContentType{contentType}
	}
	nearest, err := s.nearestClusters(ctx, embedding, tenantID, types, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(nearest) == 0 {
		return nil, 0, fmt.Errorf("cluster for %s/%s: %w", tenantID, contentType, ErrNotFound)
	}
	return nearest[0].Clone(), vecmath.CosineSimilarity(embedding, nearest[0].Centroid), nil
}

// Ping always succeeds for the in-process store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close releases the text index.
func (s *MemoryStore) Close() error {
	return s.textIdx.Close()
}

// vectorCandidates queries chromem for every indexed document passing the
// tenant, type and chunk filters, then applies metadata filters and exact
// similarity. Caller holds s.mu.
func (s *MemoryStore) vectorCandidates(ctx context.Context, q VectorQuery) ([]ScoredDocument, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrDimensionMismatch)
	}
	if err := s.checkDimension(q.Embedding); err != nil {
		return nil, err
	}
	n := s.docIdx.Count()
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{}
	if q.TenantID != "" {
		where["tenant_id"] = q.TenantID
	}
	if len(q.ContentTypes) == 1 {
		where["content_type"] = string(q.ContentTypes[0])
	}
	if q.ExcludeChunks {
		where["is_chunk"] = "false"
	}
	if len(where) == 0 {
		where = nil
	}

	hits, err := s.docIdx.QueryEmbedding(ctx, q.Embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying vector index: %w", err)
	}

	out := make([]ScoredDocument, 0, len(hits))
	for _, h := range hits {
		doc, ok := s.docs[h.ID]
		if !ok || !q.Matches(doc) {
			continue
		}
		out = append(out, ScoredDocument{
			Document:   doc.Clone(),
			Similarity: vecmath.CosineSimilarity(q.Embedding, doc.Embedding),
		})
	}
	sortBySimilarity(out)
	return out, nil
}

// nearestClusters returns up to limit clusters ordered by centroid
// similarity. Caller holds s.mu.
func (s *MemoryStore) nearestClusters(ctx context.Context, embedding []float32, tenantID string, types []ContentType, limit int) ([]*Cluster, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrDimensionMismatch)
	}
	n := s.clustIdx.Count()
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{}
	if tenantID != "" {
		where["tenant_id"] = tenantID
	}
	if len(types) == 1 {
		where["content_type"] = string(types[0])
	}
	if len(where) == 0 {
		where = nil
	}

	hits, err := s.clustIdx.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying cluster index: %w", err)
	}

	out := make([]*Cluster, 0, limit)
	for _, h := range hits {
		c, ok := s.clusters[h.ID]
		if !ok {
			continue
		}
		if len(types) > 1 && !containsContentType(types, c.ContentType) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// textScores runs a match query and returns scores scaled into [0, 1].
func (s *MemoryStore) textScores(ctx context.Context, text string) (map[string]float64, error) {
	if text == "" || len(s.docs) == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), len(s.docs), 0, false)
	res, err := s.textIdx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return normalizedScores(res), nil
}

func (s *MemoryStore) checkDimension(v []float32) error {
	if s.config.Dimension > 0 && len(v) > 0 && len(v) != s.config.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.config.Dimension)
	}
	return nil
}

func indexMetadata(d *Document) map[string]string {
	return map[string]string{
		"tenant_id":    d.TenantID,
		"content_type": string(d.ContentType),
		"is_chunk":     strconv.FormatBool(d.IsChunk()),
		"parent_id":    d.ParentID,
	}
}

// hasMagnitude reports whether v can be normalized by the vector index.
func hasMagnitude(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}

func sortDocuments(docs []*Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		if docs[i].ParentID != docs[j].ParentID {
			return docs[i].ParentID < docs[j].ParentID
		}
		if docs[i].ChunkIndex != docs[j].ChunkIndex {
			return docs[i].ChunkIndex < docs[j].ChunkIndex
		}
		return docs[i].ID < docs[j].ID
	})
}

func sortBySimilarity(results []ScoredDocument) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

func truncate(results []ScoredDocument, n int) []ScoredDocument {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
