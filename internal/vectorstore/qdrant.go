package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const backendQdrant = "qdrant"

// Payload keys. Membership and side record fields live on the document
// point so that a cascade delete of the point removes them too.
const (
	keyID                = "id"
	keyTenantID          = "tenant_id"
	keyContentType       = "content_type"
	keyIsChunk           = "is_chunk"
	keyParentID          = "parent_id"
	keyClusterID         = "cluster_id"
	keyClusterSimilarity = "cluster_similarity"
	keyClusterAssignedAt = "cluster_assigned_at"
	keySideContentType   = "side_content_type"
	prefixMeta           = "meta."
	prefixSide           = "side."
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334
	Port int

	// APIKey is sent with every request when set.
	APIKey string

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// CollectionPrefix names the two collections: {prefix}_documents and
	// {prefix}_clusters. Default: "embedlife".
	CollectionPrefix string

	// VectorSize is the dimensionality of embeddings and MUST match the
	// embedding provider.
	VectorSize uint64

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// ScrollPageSize is the page size used when listing points.
	// Default: 256
	ScrollPageSize uint32
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionPrefix == "" {
		c.CollectionPrefix = "embedlife"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.ScrollPageSize == 0 {
		c.ScrollPageSize = 256
	}
}

// QdrantStore implements Store on a Qdrant server.
type QdrantStore struct {
	client      *qdrant.Client
	config      QdrantConfig
	logger      *zap.Logger
	documents   string
	clusterColl string
}

// NewQdrantStore connects to Qdrant, checks health and creates the
// collections when they are missing.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:      client,
		config:      config,
		logger:      logger,
		documents:   config.CollectionPrefix + "_documents",
		clusterColl: config.CollectionPrefix + "_clusters",
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	for _, name := range []string{s.documents, s.clusterColl} {
		if err := s.ensureCollection(ctx, name); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Info("created qdrant collection", zap.String("collection", name), zap.Uint64("vector_size", s.config.VectorSize))
	return nil
}

// Ping performs a health check on the Qdrant connection.
func (s *QdrantStore) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Ping")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// PutDocument upserts the document point. Membership and side record
// fields already present on the point are carried over.
func (s *QdrantStore) PutDocument(ctx context.Context, doc *Document) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.PutDocument")
	defer span.End()
	defer func(start time.Time) { observe(backendQdrant, "put_document", start, err) }(time.Now())

	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", ErrInvalidConfig)
	}
	if err := s.checkVector(doc.Embedding); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("document_id", doc.ID))

	payload := documentPayload(doc)
	if existing, err := s.getPoint(ctx, s.documents, doc.ID, false); err == nil {
		for k, v := range existing.GetPayload() {
			if isAttachedKey(k) {
				payload[k] = v
			}
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.documents,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns ErrNotFound when no point has the id.
func (s *QdrantStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	p, err := s.getPoint(ctx, s.documents, id, true)
	if err != nil {
		return nil, err
	}
	return payloadDocument(p.GetPayload(), p.GetVectors().GetVector().GetData()), nil
}

// DeleteDocuments removes the document points.
func (s *QdrantStore) DeleteDocuments(ctx context.Context, ids []string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteDocuments")
	defer span.End()
	defer func(start time.Time) { observe(backendQdrant, "delete_documents", start, err) }(time.Now())

	if len(ids) == 0 {
		return nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.documents,
		Wait:           qdrant.PtrOf(true),
		Points:         idsSelector(ids),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// ListDocuments scrolls every matching point and orders them by creation.
func (s *QdrantStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	points, err := s.scrollAll(ctx, s.documents, documentFilter(filter), true)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, payloadDocument(p.GetPayload(), p.GetVectors().GetVector().GetData()))
	}
	sortDocuments(docs)
	if filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}
	return docs, nil
}

// CountDocuments uses an exact count.
func (s *QdrantStore) CountDocuments(ctx context.Context, filter DocumentFilter) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.documents,
		Filter:         documentFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(n), nil
}

// PutSideRecord stores the fields on the document point under "side.".
func (s *QdrantStore) PutSideRecord(ctx context.Context, rec *SideRecord) error {
	if rec == nil || rec.DocumentID == "" {
		return fmt.Errorf("%w: side record document id required", ErrInvalidConfig)
	}
	if err := s.DeleteSideRecord(ctx, rec.DocumentID); err != nil {
		return err
	}
	payload := map[string]*qdrant.Value{
		keySideContentType: stringValue(string(rec.ContentType)),
	}
	for k, v := range rec.Fields {
		payload[prefixSide+k] = toValue(v)
	}
	return s.setPayload(ctx, rec.DocumentID, payload)
}

func (s *QdrantStore) GetSideRecord(ctx context.Context, documentID string) (*SideRecord, error) {
	p, err := s.getPoint(ctx, s.documents, documentID, false)
	if err != nil {
		return nil, err
	}
	payload := p.GetPayload()
	ct, ok := payload[keySideContentType]
	if !ok {
		return nil, fmt.Errorf("side record %s: %w", documentID, ErrNotFound)
	}
	rec := &SideRecord{
		DocumentID:  documentID,
		ContentType: ContentType(ct.GetStringValue()),
		Fields:      make(map[string]any),
	}
	for k, v := range payload {
		if strings.HasPrefix(k, prefixSide) {
			rec.Fields[strings.TrimPrefix(k, prefixSide)] = fromValue(v)
		}
	}
	return rec, nil
}

func (s *QdrantStore) DeleteSideRecord(ctx context.Context, documentID string) error {
	p, err := s.getPoint(ctx, s.documents, documentID, false)
	if err != nil {
		return err
	}
	var keys []string
	for k := range p.GetPayload() {
		if k == keySideContentType || strings.HasPrefix(k, prefixSide) {
			keys = append(keys, k)
		}
	}
	return s.deletePayload(ctx, idsSelector([]string{documentID}), keys)
}

// PutCluster upserts the cluster point with its centroid as vector.
func (s *QdrantStore) PutCluster(ctx context.Context, c *Cluster) (err error) {
	defer func(start time.Time) { observe(backendQdrant, "put_cluster", start, err) }(time.Now())

	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: cluster id required", ErrInvalidConfig)
	}
	if err := s.checkVector(c.Centroid); err != nil {
		return err
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.clusterColl,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(c.ID),
			Vectors: qdrant.NewVectors(c.Centroid...),
			Payload: clusterPayload(c),
		}},
	})
	if err != nil {
		return fmt.Errorf("upserting cluster %s: %w", c.ID, err)
	}
	return nil
}

func (s *QdrantStore) GetCluster(ctx context.Context, id string) (*Cluster, error) {
	p, err := s.getPoint(ctx, s.clusterColl, id, true)
	if err != nil {
		return nil, err
	}
	return payloadCluster(p.GetPayload(), p.GetVectors().GetVector().GetData()), nil
}

func (s *QdrantStore) ListClusters(ctx context.Context, filter ClusterFilter) ([]*Cluster, error) {
	var conds []*qdrant.Condition
	if filter.TenantID != "" {
		conds = append(conds, keywordCondition(keyTenantID, filter.TenantID))
	}
	if filter.ContentType != "" {
		conds = append(conds, keywordCondition(keyContentType, string(filter.ContentType)))
	}
	points, err := s.scrollAll(ctx, s.clusterColl, mustFilter(conds), true)
	if err != nil {
		return nil, err
	}
	out := make([]*Cluster, 0, len(points))
	for _, p := range points {
		out = append(out, payloadCluster(p.GetPayload(), p.GetVectors().GetVector().GetData()))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteCluster removes the cluster point and clears the membership
// fields of its members.
func (s *QdrantStore) DeleteCluster(ctx context.Context, id string) error {
	members := &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: mustFilter([]*qdrant.Condition{keywordCondition(keyClusterID, id)}),
		},
	}
	if err := s.deletePayload(ctx, members, membershipKeys()); err != nil {
		return err
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.clusterColl,
		Wait:           qdrant.PtrOf(true),
		Points:         idsSelector([]string{id}),
	})
	if err != nil {
		return fmt.Errorf("deleting cluster %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) SetMembership(ctx context.Context, m *Membership) error {
	if m == nil || m.DocumentID == "" || m.ClusterID == "" {
		return fmt.Errorf("%w: membership requires document and cluster id", ErrInvalidConfig)
	}
	return s.setPayload(ctx, m.DocumentID, map[string]*qdrant.Value{
		keyClusterID:         stringValue(m.ClusterID),
		keyClusterSimilarity: {Kind: &qdrant.Value_DoubleValue{DoubleValue: m.SimilarityToCentroid}},
		keyClusterAssignedAt: stringValue(m.AssignedAt.UTC().Format(time.RFC3339Nano)),
	})
}

func (s *QdrantStore) GetMembership(ctx context.Context, documentID string) (*Membership, error) {
	p, err := s.getPoint(ctx, s.documents, documentID, false)
	if err != nil {
		return nil, err
	}
	m, ok := payloadMembership(p.GetPayload())
	if !ok {
		return nil, fmt.Errorf("membership of %s: %w", documentID, ErrNotFound)
	}
	return m, nil
}

func (s *QdrantStore) ListMemberships(ctx context.Context, clusterID string) ([]*Membership, error) {
	var filter *qdrant.Filter
	if clusterID != "" {
		filter = mustFilter([]*qdrant.Condition{keywordCondition(keyClusterID, clusterID)})
	}
	points, err := s.scrollAll(ctx, s.documents, filter, false)
	if err != nil {
		return nil, err
	}
	out := make([]*Membership, 0)
	for _, p := range points {
		if m, ok := payloadMembership(p.GetPayload()); ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *QdrantStore) DeleteMembership(ctx context.Context, documentID string) error {
	return s.deletePayload(ctx, idsSelector([]string{documentID}), membershipKeys())
}

// SearchVectors delegates ranking to Qdrant's HNSW index.
func (s *QdrantStore) SearchVectors(ctx context.Context, q VectorQuery) (results []ScoredDocument, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.SearchVectors")
	defer span.End()
	defer func(start time.Time) { observe(backendQdrant, "search_vectors", start, err) }(time.Now())

	results, err = s.queryDocuments(ctx, q, q.Count, q.Threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results_count", len(results)))
	return results, nil
}

// HybridSearch over-fetches vector candidates and scores their text with
// BM25 before combining.
func (s *QdrantStore) HybridSearch(ctx context.Context, q HybridQuery) (results []ScoredDocument, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.HybridSearch")
	defer span.End()
	defer func(start time.Time) { observe(backendQdrant, "hybrid_search", start, err) }(time.Now())

	vw, tw := q.VectorWeight, q.TextWeight
	if vw == 0 && tw == 0 {
		vw, tw = 0.7, 0.3
	}
	pool := q.Count * 4
	if pool <= 0 {
		pool = 100
	}

	candidates, err := s.queryDocuments(ctx, q.VectorQuery, pool, 0)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Document
	}
	textScores, err := lexicalScores(ctx, q.Text, docs)
	if err != nil {
		s.logger.Warn("lexical scoring failed, using vector similarity only", zap.Error(err))
	}

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
	return truncate(results, q.Count), nil
}

// SearchClusters queries the cluster collection, then each cluster's
// members.
func (s *QdrantStore) SearchClusters(ctx context.Context, q ClusterQuery) (results []ScoredDocument, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.SearchClusters")
	defer span.End()
	defer func(start time.Time) { observe(backendQdrant, "search_clusters", start, err) }(time.Now())

	clusterCount := q.ClusterCount
	if clusterCount <= 0 {
		clusterCount = 3
	}
	perCluster := q.DocsPerCluster
	if perCluster <= 0 {
		perCluster = 10
	}

	clusters, err := s.queryClusters(ctx, q.Embedding, q.TenantID, q.ContentTypes, clusterCount)
	if err != nil {
		return nil, err
	}

	for _, c := range clusters {
		hits, err := s.queryDocuments(ctx, VectorQuery{
			Embedding: q.Embedding,
			TenantID:  q.TenantID,
		}, perCluster, q.Threshold, keywordCondition(keyClusterID, c.cluster.ID))
		if err != nil {
			return nil, err
		}
		for i := range hits {
			hits[i].ClusterID = c.cluster.ID
		}
		results = append(results, hits...)
	}
	sortBySimilarity(results)
	return results, nil
}

func (s *QdrantStore) NearestCluster(ctx context.Context, embedding []float32, tenantID string, contentType ContentType) (*Cluster, float64, error) {
	var types []ContentType
	if contentType != "" {
		types = []ContentType{contentType}
	}
	clusters, err := s.queryClusters(ctx, embedding, tenantID, types, 1)
	if err != nil {
		return nil, 0, err
	}
	if len(clusters) == 0 {
		return nil, 0, fmt.Errorf("cluster for %s/%s: %w", tenantID, contentType, ErrNotFound)
	}
	return clusters[0].cluster, clusters[0].score, nil
}

type scoredCluster struct {
	cluster *Cluster
	score   float64
}

func (s *QdrantStore) queryClusters(ctx context.Context, embedding []float32, tenantID string, types []ContentType, limit int) ([]scoredCluster, error) {
	if err := s.checkVector(embedding); err != nil {
		return nil, err
	}
	var conds []*qdrant.Condition
	if tenantID != "" {
		conds = append(conds, keywordCondition(keyTenantID, tenantID))
	}
	if len(types) > 0 {
		conds = append(conds, keywordsCondition(keyContentType, contentTypeStrings(types)))
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.clusterColl,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         mustFilter(conds),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	out := make([]scoredCluster, 0, len(points))
	for _, p := range points {
		c := payloadCluster(p.GetPayload(), p.GetVectors().GetVector().GetData())
		out = append(out, scoredCluster{cluster: c, score: float64(p.GetScore())})
	}
	return out, nil
}

func (s *QdrantStore) queryDocuments(ctx context.Context, q VectorQuery, limit int, threshold float64, extra ...*qdrant.Condition) ([]ScoredDocument, error) {
	if err := s.checkVector(q.Embedding); err != nil {
		return nil, err
	}
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrDimensionMismatch)
	}
	if limit <= 0 {
		limit = 10
	}

	conds := append(vectorQueryConditions(q), extra...)
	req := &qdrant.QueryPoints{
		CollectionName: s.documents,
		Query:          qdrant.NewQuery(q.Embedding...),
		Filter:         mustFilter(conds),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if threshold > 0 {
		req.ScoreThreshold = qdrant.PtrOf(float32(threshold))
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	out := make([]ScoredDocument, 0, len(points))
	for _, p := range points {
		out = append(out, ScoredDocument{
			Document:   payloadDocument(p.GetPayload(), p.GetVectors().GetVector().GetData()),
			Similarity: float64(p.GetScore()),
		})
	}
	return out, nil
}

func (s *QdrantStore) getPoint(ctx context.Context, collection, id string, withVectors bool) (*qdrant.RetrievedPoint, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s from %s: %w", id, collection, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s in %s: %w", id, collection, ErrNotFound)
	}
	return points[0], nil
}

// scrollAll pages through every point matching filter. The offset point
// of a scroll request is inclusive, so each page asks for one extra point
// and uses it as the next offset.
func (s *QdrantStore) scrollAll(ctx context.Context, collection string, filter *qdrant.Filter, withVectors bool) ([]*qdrant.RetrievedPoint, error) {
	page := s.config.ScrollPageSize
	var (
		all    []*qdrant.RetrievedPoint
		offset *qdrant.PointId
	)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(page + 1),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling %s: %w", collection, err)
		}
		if uint32(len(points)) <= page {
			return append(all, points...), nil
		}
		all = append(all, points[:page]...)
		offset = points[page].GetId()
	}
}

func (s *QdrantStore) setPayload(ctx context.Context, documentID string, payload map[string]*qdrant.Value) error {
	if _, err := s.getPoint(ctx, s.documents, documentID, false); err != nil {
		return err
	}
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.documents,
		Wait:           qdrant.PtrOf(true),
		Payload:        payload,
		PointsSelector: idsSelector([]string{documentID}),
	})
	if err != nil {
		return fmt.Errorf("setting payload on %s: %w", documentID, err)
	}
	return nil
}

func (s *QdrantStore) deletePayload(ctx context.Context, selector *qdrant.PointsSelector, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.DeletePayload(ctx, &qdrant.DeletePayloadPoints{
		CollectionName: s.documents,
		Wait:           qdrant.PtrOf(true),
		Keys:           keys,
		PointsSelector: selector,
	})
	if err != nil {
		return fmt.Errorf("deleting payload keys: %w", err)
	}
	return nil
}

func (s *QdrantStore) checkVector(v []float32) error {
	if uint64(len(v)) != s.config.VectorSize {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.config.VectorSize)
	}
	return nil
}

// pointID maps an arbitrary string id onto a Qdrant UUID point id.
// UUIDs pass through; other ids are hashed into a stable name-based UUID.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func idsSelector(ids []string) *qdrant.PointsSelector {
	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	return &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: pids},
		},
	}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func keywordsCondition(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

func mustFilter(conds []*qdrant.Condition) *qdrant.Filter {
	if len(conds) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conds}
}

func documentFilter(f DocumentFilter) *qdrant.Filter {
	var conds []*qdrant.Condition
	if f.TenantID != "" {
		conds = append(conds, keywordCondition(keyTenantID, f.TenantID))
	}
	if f.ContentType != "" {
		conds = append(conds, keywordCondition(keyContentType, string(f.ContentType)))
	}
	if f.ParentID != "" {
		conds = append(conds, keywordCondition(keyParentID, f.ParentID))
	}
	if f.ParentsOnly {
		conds = append(conds, keywordCondition(keyIsChunk, "false"))
	}
	return mustFilter(conds)
}

// vectorQueryConditions translates the non-vector parts of q. Metadata
// filters match the stringified value stored under "meta.<key>".
func vectorQueryConditions(q VectorQuery) []*qdrant.Condition {
	var conds []*qdrant.Condition
	if q.TenantID != "" {
		conds = append(conds, keywordCondition(keyTenantID, q.TenantID))
	}
	if len(q.ContentTypes) > 0 {
		conds = append(conds, keywordsCondition(keyContentType, contentTypeStrings(q.ContentTypes)))
	}
	if q.ExcludeChunks {
		conds = append(conds, keywordCondition(keyIsChunk, "false"))
	}
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		conds = append(conds, keywordCondition(prefixMeta+k, q.Filters[k]))
	}
	return conds
}

func contentTypeStrings(types []ContentType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func isAttachedKey(k string) bool {
	return k == keyClusterID || k == keyClusterSimilarity || k == keyClusterAssignedAt ||
		k == keySideContentType || strings.HasPrefix(k, prefixSide)
}

func membershipKeys() []string {
	return []string{keyClusterID, keyClusterSimilarity, keyClusterAssignedAt}
}

// documentPayload flattens a document into a Qdrant payload. Metadata values
// are stored as strings under "meta.<key>" so keyword filters match them;
// numeric values come back as strings, which Metadata.Float parses.
func documentPayload(d *Document) map[string]*qdrant.Value {
	status := d.Status
	if status == "" {
		status = StatusActive
	}
	p := map[string]*qdrant.Value{
		keyID:          stringValue(d.ID),
		"content":      stringValue(d.Content),
		"title":        stringValue(d.Title),
		"summary":      stringValue(d.Summary),
		keyContentType: stringValue(string(d.ContentType)),
		keyTenantID:    stringValue(d.TenantID),
		"source_id":    stringValue(d.SourceID),
		"source_url":   stringValue(d.SourceURL),
		"language":     stringValue(d.Language),
		"status":       stringValue(string(status)),
		"created_at":   stringValue(d.CreatedAt.UTC().Format(time.RFC3339Nano)),
		"updated_at":   stringValue(d.UpdatedAt.UTC().Format(time.RFC3339Nano)),
		keyParentID:    stringValue(d.ParentID),
		keyIsChunk:     stringValue(strconv.FormatBool(d.IsChunk())),
		"chunk_index":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(d.ChunkIndex)}},
		"chunk_count":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(d.ChunkCount)}},
	}
	for k, v := range d.Metadata {
		p[prefixMeta+k] = stringValue(Metadata{k: v}.String(k))
	}
	return p
}

func payloadDocument(p map[string]*qdrant.Value, vector []float32) *Document {
	d := &Document{
		ID:          p[keyID].GetStringValue(),
		Content:     p["content"].GetStringValue(),
		Title:       p["title"].GetStringValue(),
		Summary:     p["summary"].GetStringValue(),
		ContentType: ContentType(p[keyContentType].GetStringValue()),
		TenantID:    p[keyTenantID].GetStringValue(),
		SourceID:    p["source_id"].GetStringValue(),
		SourceURL:   p["source_url"].GetStringValue(),
		Language:    p["language"].GetStringValue(),
		Status:      Status(p["status"].GetStringValue()),
		CreatedAt:   parseTime(p["created_at"].GetStringValue()),
		UpdatedAt:   parseTime(p["updated_at"].GetStringValue()),
		ParentID:    p[keyParentID].GetStringValue(),
		ChunkIndex:  int(p["chunk_index"].GetIntegerValue()),
		ChunkCount:  int(p["chunk_count"].GetIntegerValue()),
	}
	if len(vector) > 0 {
		d.Embedding = append([]float32(nil), vector...)
	}
	for k, v := range p {
		if strings.HasPrefix(k, prefixMeta) {
			if d.Metadata == nil {
				d.Metadata = make(Metadata)
			}
			d.Metadata[strings.TrimPrefix(k, prefixMeta)] = fromValue(v)
		}
	}
	return d
}

func clusterPayload(c *Cluster) map[string]*qdrant.Value {
	p := map[string]*qdrant.Value{
		keyID:                stringValue(c.ID),
		"name":               stringValue(c.Name),
		keyContentType:       stringValue(string(c.ContentType)),
		keyTenantID:          stringValue(c.TenantID),
		"member_count":       {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.MemberCount)}},
		"average_similarity": {Kind: &qdrant.Value_DoubleValue{DoubleValue: c.AverageSimilarity}},
		"created_at":         stringValue(c.CreatedAt.UTC().Format(time.RFC3339Nano)),
		"updated_at":         stringValue(c.UpdatedAt.UTC().Format(time.RFC3339Nano)),
	}
	for k, v := range c.Metadata {
		p[prefixMeta+k] = toValue(v)
	}
	return p
}

func payloadCluster(p map[string]*qdrant.Value, centroid []float32) *Cluster {
	c := &Cluster{
		ID:                p[keyID].GetStringValue(),
		Name:              p["name"].GetStringValue(),
		ContentType:       ContentType(p[keyContentType].GetStringValue()),
		TenantID:          p[keyTenantID].GetStringValue(),
		Centroid:          append([]float32(nil), centroid...),
		MemberCount:       int(p["member_count"].GetIntegerValue()),
		AverageSimilarity: p["average_similarity"].GetDoubleValue(),
		CreatedAt:         parseTime(p["created_at"].GetStringValue()),
		UpdatedAt:         parseTime(p["updated_at"].GetStringValue()),
	}
	for k, v := range p {
		if strings.HasPrefix(k, prefixMeta) {
			if c.Metadata == nil {
				c.Metadata = make(Metadata)
			}
			c.Metadata[strings.TrimPrefix(k, prefixMeta)] = fromValue(v)
		}
	}
	return c
}

func payloadMembership(p map[string]*qdrant.Value) (*Membership, bool) {
	clusterID := p[keyClusterID].GetStringValue()
	if clusterID == "" {
		return nil, false
	}
	return &Membership{
		DocumentID:           p[keyID].GetStringValue(),
		ClusterID:            clusterID,
		SimilarityToCentroid: p[keyClusterSimilarity].GetDoubleValue(),
		AssignedAt:           parseTime(p[keyClusterAssignedAt].GetStringValue()),
	}, true
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return stringValue(val)
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return stringValue(fmt.Sprint(val))
	}
}

func fromValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
