package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// PerformKMeans runs k-means over vectors with the manager's iteration and
// convergence settings.
func (m *Manager) PerformKMeans(vectors [][]float32, k int) *KMeansResult {
	return m.kmeans.Run(vectors, k)
}

// FindOptimalK chooses k for vectors by the elbow method, bounded by
// maxClusters.
func (m *Manager) FindOptimalK(vectors [][]float32, maxClusters int) int {
	k, _ := m.kmeans.OptimalK(vectors, maxClusters)
	return k
}

// RebalanceClusters re-clusters parent documents with batch k-means.
//
// An empty tenantID rebalances every tenant holding documents, and an empty
// contentType every content type present. Types with fewer than
// MinDocumentsPerCluster embedded parents are skipped.
func (m *Manager) RebalanceClusters(ctx context.Context, tenantID string, contentType vectorstore.ContentType) (*RebalanceResult, error) {
	ctx, span := m.tracer.Start(ctx, "cluster.RebalanceClusters")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	defer func() { RebalanceDuration.Observe(time.Since(start).Seconds()) }()

	docs, err := m.store.ListDocuments(ctx, vectorstore.DocumentFilter{
		TenantID:    tenantID,
		ContentType: contentType,
		ParentsOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type groupKey struct {
		tenant string
		ct     vectorstore.ContentType
	}
	groups := make(map[groupKey][]*vectorstore.Document)
	unembedded := make(map[groupKey][]*vectorstore.Document)
	var keys []groupKey
	for _, d := range docs {
		k := groupKey{d.TenantID, d.ContentType}
		if len(d.Embedding) == 0 {
			unembedded[k] = append(unembedded[k], d)
			continue
		}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], d)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tenant != keys[j].tenant {
			return keys[i].tenant < keys[j].tenant
		}
		return keys[i].ct < keys[j].ct
	})

	result := &RebalanceResult{}
	for _, k := range keys {
		tr, err := m.rebalanceGroup(ctx, k.tenant, k.ct, groups[k], unembedded[k])
		if err != nil {
			return result, fmt.Errorf("rebalancing %s/%s: %w", k.tenant, k.ct, err)
		}
		result.Types = append(result.Types, *tr)
	}
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("groups", len(result.Types)),
		attribute.Int("documents_moved", result.DocumentsMoved()),
	)
	m.logger.Info("clusters rebalanced",
		zap.String("tenant_id", tenantID),
		zap.String("content_type", string(contentType)),
		zap.Int("groups", len(result.Types)),
		zap.Int("documents_moved", result.DocumentsMoved()),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// rebalanceGroup re-clusters one tenant and content type. excluded holds
// parents that cannot take part; their memberships are dropped when the
// group is rebalanced since the clusters they point at may be replaced.
func (m *Manager) rebalanceGroup(ctx context.Context, tenantID string, ct vectorstore.ContentType, docs, excluded []*vectorstore.Document) (*TypeRebalance, error) {
	tr := &TypeRebalance{TenantID: tenantID, ContentType: ct}

	// Vectors of a foreign dimension cannot share centroids with the rest.
	dim := len(docs[0].Embedding)
	kept := docs[:0:0]
	for _, d := range docs {
		if len(d.Embedding) == dim {
			kept = append(kept, d)
		} else {
			excluded = append(excluded, d)
		}
	}
	docs = kept
	tr.Documents = len(docs)

	if len(docs) < m.config.MinDocumentsPerCluster {
		tr.Skipped = true
		return tr, nil
	}

	existing, err := m.store.ListClusters(ctx, vectorstore.ClusterFilter{TenantID: tenantID, ContentType: ct})
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}

	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		vectors[i] = d.Embedding
	}

	previous := make(map[string]string, len(docs))
	before, err := m.currentWCSS(ctx, docs, existing, previous)
	if err != nil {
		return nil, err
	}

	tr.K = m.FindOptimalK(vectors, m.config.MaxClusters)
	km := m.PerformKMeans(vectors, tr.K)
	tr.Iterations = km.Iterations
	tr.Converged = km.Converged
	tr.WCSS = km.WCSS
	if before > 0 && km.WCSS < before {
		tr.Improvement = (before - km.WCSS) / before
	}

	sizes := make([]int, len(km.Centroids))
	for _, a := range km.Assignments {
		sizes[a]++
	}

	// Largest new clusters claim the closest existing cluster first so
	// stable groups keep their ids.
	claimed := make(map[string]bool, len(existing))
	clusterIDs := make([]string, len(km.Centroids))
	now := m.now()
	for _, ci := range sortClustersBySize(sizes) {
		if sizes[ci] == 0 {
			continue
		}
		centroid := km.Centroids[ci]

		var members [][]float32
		for i, a := range km.Assignments {
			if a == ci {
				members = append(members, vectors[i])
			}
		}

		var reuse *vectorstore.Cluster
		bestSim := -2.0
		for _, c := range existing {
			if claimed[c.ID] || len(c.Centroid) != dim {
				continue
			}
			if sim := vecmath.CosineSimilarity(centroid, c.Centroid); sim > bestSim {
				reuse, bestSim = c, sim
			}
		}

		c := reuse
		if c == nil {
			c = &vectorstore.Cluster{
				ID:          uuid.NewString(),
				Name:        fmt.Sprintf("%s-%d", ct, len(existing)+tr.ClustersCreated+1),
				ContentType: ct,
				TenantID:    tenantID,
				CreatedAt:   now,
			}
			tr.ClustersCreated++
		} else {
			claimed[c.ID] = true
			tr.ClustersUpdated++
		}
		c.Centroid = centroid
		c.MemberCount = sizes[ci]
		c.AverageSimilarity = averageSimilarity(members, centroid)
		c.UpdatedAt = now
		if err := m.store.PutCluster(ctx, c); err != nil {
			return nil, fmt.Errorf("saving cluster: %w", err)
		}
		clusterIDs[ci] = c.ID
	}

	for i, d := range docs {
		a := km.Assignments[i]
		target := clusterIDs[a]
		if previous[d.ID] != target {
			tr.DocumentsMoved++
		}
		if err := m.store.SetMembership(ctx, &vectorstore.Membership{
			DocumentID:           d.ID,
			ClusterID:            target,
			SimilarityToCentroid: vecmath.CosineSimilarity(d.Embedding, km.Centroids[a]),
			AssignedAt:           now,
		}); err != nil {
			return nil, fmt.Errorf("saving membership: %w", err)
		}
	}

	for _, d := range excluded {
		_, err := m.store.GetMembership(ctx, d.ID)
		if errors.Is(err, vectorstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading membership of %s: %w", d.ID, err)
		}
		if err := m.store.DeleteMembership(ctx, d.ID); err != nil {
			return nil, fmt.Errorf("dropping membership of %s: %w", d.ID, err)
		}
		tr.MembershipsDropped++
	}

	for _, c := range existing {
		if claimed[c.ID] {
			continue
		}
		if err := m.store.DeleteCluster(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("deleting cluster %s: %w", c.ID, err)
		}
		tr.ClustersDeleted++
	}

	m.logger.Debug("content type rebalanced",
		zap.String("tenant_id", tenantID),
		zap.String("content_type", string(ct)),
		zap.Int("documents", tr.Documents),
		zap.Int("k", tr.K),
		zap.Int("iterations", tr.Iterations),
		zap.Bool("converged", tr.Converged),
		zap.Float64("improvement", tr.Improvement))

	return tr, nil
}

// currentWCSS measures the clustering in place before a rebalance: each
// document against its current cluster, or the nearest existing centroid
// when unassigned, or the mean of all documents when no cluster exists.
// previous is filled with each document's current cluster id.
func (m *Manager) currentWCSS(ctx context.Context, docs []*vectorstore.Document, existing []*vectorstore.Cluster, previous map[string]string) (float64, error) {
	byID := make(map[string]*vectorstore.Cluster, len(existing))
	for _, c := range existing {
		byID[c.ID] = c
	}

	var global []float32
	sum := 0.0
	for _, d := range docs {
		var centroid []float32

		mem, err := m.store.GetMembership(ctx, d.ID)
		switch {
		case err == nil:
			previous[d.ID] = mem.ClusterID
			if c, ok := byID[mem.ClusterID]; ok {
				centroid = c.Centroid
			}
		case !errors.Is(err, vectorstore.ErrNotFound):
			return 0, fmt.Errorf("reading membership of %s: %w", d.ID, err)
		}

		if centroid == nil {
			if c, _ := mostSimilar(d.Embedding, existing, ""); c != nil {
				centroid = c.Centroid
			}
		}
		if centroid == nil {
			if global == nil {
				vectors := make([][]float32, len(docs))
				for i, doc := range docs {
					vectors[i] = doc.Embedding
				}
				global = vecmath.Mean(vectors)
			}
			centroid = global
		}

		dist := vecmath.Distance(d.Embedding, centroid)
		sum += dist * dist
	}
	return sum, nil
}
