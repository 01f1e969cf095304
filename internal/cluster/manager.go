package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/embedlife/internal/cluster"

// ErrNoEmbedding is returned when a document has no vector to cluster on.
var ErrNoEmbedding = errors.New("document has no embedding")

// Store is the storage the manager needs.
type Store interface {
	vectorstore.DocumentStore
	vectorstore.ClusterStore
}

// Manager assigns documents to clusters and maintains centroids.
type Manager struct {
	// mu serializes membership and centroid writes.
	mu     sync.Mutex
	config *Config
	store  Store
	kmeans *KMeans
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewManager creates a cluster manager. A nil config uses DefaultConfig.
func NewManager(cfg *Config, store Store, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		config: cfg,
		store:  store,
		kmeans: NewKMeans(cfg.MaxIterations, cfg.ConvergenceThreshold, cfg.seed()),
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}, nil
}

// Config returns the manager configuration.
func (m *Manager) Config() Config {
	return *m.config
}

// AssignDocument places a document in the most similar cluster of its tenant
// and content type, seeding a new cluster when none is similar enough and
// MaxClusters allows it.
func (m *Manager) AssignDocument(ctx context.Context, documentID string) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assign(ctx, documentID)
}

func (m *Manager) assign(ctx context.Context, documentID string) (*Assignment, error) {
	ctx, span := m.tracer.Start(ctx, "cluster.AssignDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	doc, err := m.embeddedDocument(ctx, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	clusters, err := m.store.ListClusters(ctx, vectorstore.ClusterFilter{TenantID: doc.TenantID, ContentType: doc.ContentType})
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}

	best, bestSim := mostSimilar(doc.Embedding, clusters, "")
	a := &Assignment{DocumentID: doc.ID}

	var target *vectorstore.Cluster
	switch {
	case best != nil && bestSim >= m.config.SimilarityThreshold:
		target = best
		a.Similarity = bestSim
		AssignmentsTotal.WithLabelValues("joined").Inc()
	case len(clusters) < m.config.MaxClusters:
		target, err = m.createCluster(ctx, doc, len(clusters)+1)
		if err != nil {
			return nil, err
		}
		a.Created = true
		a.Similarity = vecmath.CosineSimilarity(doc.Embedding, target.Centroid)
		AssignmentsTotal.WithLabelValues("created").Inc()
	default:
		target = best
		a.Similarity = bestSim
		a.Forced = true
		AssignmentsTotal.WithLabelValues("forced").Inc()
	}
	a.ClusterID = target.ID

	prev, err := m.store.GetMembership(ctx, doc.ID)
	if err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
		return nil, fmt.Errorf("reading membership: %w", err)
	}

	if err := m.store.SetMembership(ctx, &vectorstore.Membership{
		DocumentID:           doc.ID,
		ClusterID:            target.ID,
		SimilarityToCentroid: a.Similarity,
		AssignedAt:           m.now(),
	}); err != nil {
		return nil, fmt.Errorf("saving membership: %w", err)
	}

	if _, err := m.recompute(ctx, target.ID); err != nil {
		return nil, err
	}
	if prev != nil && prev.ClusterID != target.ID {
		if _, err := m.recompute(ctx, prev.ClusterID); err != nil {
			m.logger.Warn("recomputing vacated cluster failed",
				zap.String("cluster_id", prev.ClusterID), zap.Error(err))
		}
	}

	m.logger.Debug("document assigned",
		zap.String("document_id", doc.ID),
		zap.String("cluster_id", target.ID),
		zap.Float64("similarity", a.Similarity),
		zap.Bool("created", a.Created),
		zap.Bool("forced", a.Forced))

	return a, nil
}

// ReassignDocument moves a document to a better cluster when the gain over
// its current cluster exceeds RebalanceThreshold. Unassigned documents are
// assigned. Both affected centroids are recomputed on a move and a vacated
// cluster left empty is deleted.
func (m *Manager) ReassignDocument(ctx context.Context, documentID string) (*Reassignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reassign(ctx, documentID)
}

func (m *Manager) reassign(ctx context.Context, documentID string) (*Reassignment, error) {
	ctx, span := m.tracer.Start(ctx, "cluster.ReassignDocument")
	defer span.End()

	current, err := m.store.GetMembership(ctx, documentID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return m.assignFresh(ctx, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading membership: %w", err)
	}

	doc, err := m.embeddedDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	currentCluster, err := m.store.GetCluster(ctx, current.ClusterID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		if err := m.store.DeleteMembership(ctx, documentID); err != nil {
			return nil, fmt.Errorf("dropping dangling membership: %w", err)
		}
		return m.assignFresh(ctx, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cluster: %w", err)
	}

	clusters, err := m.store.ListClusters(ctx, vectorstore.ClusterFilter{TenantID: doc.TenantID, ContentType: doc.ContentType})
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}

	r := &Reassignment{
		DocumentID:        documentID,
		FromClusterID:     currentCluster.ID,
		ToClusterID:       currentCluster.ID,
		CurrentSimilarity: vecmath.CosineSimilarity(doc.Embedding, currentCluster.Centroid),
	}
	best, bestSim := mostSimilar(doc.Embedding, clusters, currentCluster.ID)
	r.BestSimilarity = bestSim

	if best == nil || bestSim-r.CurrentSimilarity <= m.config.RebalanceThreshold {
		// The member's embedding may have changed since it joined.
		if err := m.store.SetMembership(ctx, &vectorstore.Membership{
			DocumentID:           documentID,
			ClusterID:            currentCluster.ID,
			SimilarityToCentroid: r.CurrentSimilarity,
			AssignedAt:           current.AssignedAt,
		}); err != nil {
			return nil, fmt.Errorf("saving membership: %w", err)
		}
		if _, err := m.recompute(ctx, currentCluster.ID); err != nil {
			return nil, err
		}
		AssignmentsTotal.WithLabelValues("kept").Inc()
		return r, nil
	}

	if err := m.store.SetMembership(ctx, &vectorstore.Membership{
		DocumentID:           documentID,
		ClusterID:            best.ID,
		SimilarityToCentroid: bestSim,
		AssignedAt:           m.now(),
	}); err != nil {
		return nil, fmt.Errorf("saving membership: %w", err)
	}
	r.ToClusterID = best.ID
	r.Moved = true
	AssignmentsTotal.WithLabelValues("moved").Inc()

	if _, err := m.recompute(ctx, best.ID); err != nil {
		return nil, err
	}
	if _, err := m.recompute(ctx, currentCluster.ID); err != nil {
		return nil, err
	}

	m.logger.Info("document moved between clusters",
		zap.String("document_id", documentID),
		zap.String("from", r.FromClusterID),
		zap.String("to", r.ToClusterID),
		zap.Float64("gain", bestSim-r.CurrentSimilarity))

	return r, nil
}

func (m *Manager) assignFresh(ctx context.Context, documentID string) (*Reassignment, error) {
	a, err := m.assign(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &Reassignment{
		DocumentID:     documentID,
		ToClusterID:    a.ClusterID,
		BestSimilarity: a.Similarity,
		Moved:          true,
		Assignment:     a,
	}, nil
}

// RefreshCluster recomputes a cluster from its current members, deleting it
// when none remain. Returns the cluster, or nil if it was deleted or did not
// exist.
func (m *Manager) RefreshCluster(ctx context.Context, clusterID string) (*vectorstore.Cluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recompute(ctx, clusterID)
}

// recompute sets the centroid to the mean of all member embeddings and
// refreshes MemberCount and AverageSimilarity. Memberships whose document
// is gone are dropped.
func (m *Manager) recompute(ctx context.Context, clusterID string) (*vectorstore.Cluster, error) {
	c, err := m.store.GetCluster(ctx, clusterID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cluster %s: %w", clusterID, err)
	}

	members, err := m.store.ListMemberships(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", clusterID, err)
	}

	vectors := make([][]float32, 0, len(members))
	for _, mem := range members {
		doc, err := m.store.GetDocument(ctx, mem.DocumentID)
		if errors.Is(err, vectorstore.ErrNotFound) {
			if err := m.store.DeleteMembership(ctx, mem.DocumentID); err != nil {
				return nil, fmt.Errorf("dropping orphaned membership: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading member %s: %w", mem.DocumentID, err)
		}
		if len(doc.Embedding) > 0 {
			vectors = append(vectors, doc.Embedding)
		}
	}

	if len(vectors) == 0 {
		if err := m.store.DeleteCluster(ctx, clusterID); err != nil {
			return nil, fmt.Errorf("deleting empty cluster %s: %w", clusterID, err)
		}
		m.logger.Debug("deleted empty cluster", zap.String("cluster_id", clusterID))
		return nil, nil
	}

	c.Centroid = vecmath.Mean(vectors)
	c.MemberCount = len(vectors)
	c.AverageSimilarity = averageSimilarity(vectors, c.Centroid)
	c.UpdatedAt = m.now()
	if err := m.store.PutCluster(ctx, c); err != nil {
		return nil, fmt.Errorf("saving cluster %s: %w", clusterID, err)
	}
	return c, nil
}

func (m *Manager) createCluster(ctx context.Context, doc *vectorstore.Document, ordinal int) (*vectorstore.Cluster, error) {
	now := m.now()
	c := &vectorstore.Cluster{
		ID:          uuid.NewString(),
		Name:        fmt.Sprintf("%s-%d", doc.ContentType, ordinal),
		ContentType: doc.ContentType,
		TenantID:    doc.TenantID,
		Centroid:    clone(doc.Embedding),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.PutCluster(ctx, c); err != nil {
		return nil, fmt.Errorf("creating cluster: %w", err)
	}
	return c, nil
}

func (m *Manager) embeddedDocument(ctx context.Context, id string) (*vectorstore.Document, error) {
	doc, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if len(doc.Embedding) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEmbedding, id)
	}
	return doc, nil
}

// mostSimilar returns the cluster whose centroid is closest to v, skipping
// the cluster with id exclude.
func mostSimilar(v []float32, clusters []*vectorstore.Cluster, exclude string) (*vectorstore.Cluster, float64) {
	var best *vectorstore.Cluster
	bestSim := math.Inf(-1)
	for _, c := range clusters {
		if c.ID == exclude || len(c.Centroid) != len(v) {
			continue
		}
		if sim := vecmath.CosineSimilarity(v, c.Centroid); sim > bestSim {
			best, bestSim = c, sim
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestSim
}

func averageSimilarity(vectors [][]float32, centroid []float32) float64 {
	if len(vectors) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vectors {
		sum += vecmath.CosineSimilarity(v, centroid)
	}
	return sum / float64(len(vectors))
}

// sortClustersBySize orders cluster indexes by descending population.
func sortClustersBySize(sizes []int) []int {
	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sizes[order[a]] > sizes[order[b]] })
	return order
}
