package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// maxDistancePairs bounds the centroid pairs sampled for inter-cluster
// distance.
const maxDistancePairs = 100

// GetClusterStats summarizes the clusters of a tenant. An empty tenantID
// covers every tenant.
func (m *Manager) GetClusterStats(ctx context.Context, tenantID string) (*Stats, error) {
	clusters, err := m.store.ListClusters(ctx, vectorstore.ClusterFilter{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}

	stats := &Stats{
		TotalClusters: len(clusters),
		ByContentType: make(map[vectorstore.ContentType]int),
	}

	intraSum, intraN := 0.0, 0
	for _, c := range clusters {
		stats.ByContentType[c.ContentType]++
		stats.TotalMembers += c.MemberCount
		switch {
		case c.MemberCount < 10:
			stats.Sizes.Small++
		case c.MemberCount <= 50:
			stats.Sizes.Medium++
		default:
			stats.Sizes.Large++
		}
		if c.MemberCount > 0 {
			intraSum += c.AverageSimilarity
			intraN++
		}
	}
	if intraN > 0 {
		stats.AverageIntraSimilarity = intraSum / float64(intraN)
	}
	stats.AverageInterDistance = interCentroidDistance(clusters, rand.New(rand.NewSource(int64(len(clusters)))))

	return stats, nil
}

// interCentroidDistance averages 1 - cosine over centroid pairs, sampling at
// most maxDistancePairs pairs.
func interCentroidDistance(clusters []*vectorstore.Cluster, rng *rand.Rand) float64 {
	n := len(clusters)
	if n < 2 {
		return 0
	}

	total := n * (n - 1) / 2
	sum, count := 0.0, 0
	if total <= maxDistancePairs {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				sum += vecmath.Distance(clusters[i].Centroid, clusters[j].Centroid)
				count++
			}
		}
	} else {
		for count < maxDistancePairs {
			i, j := rng.Intn(n), rng.Intn(n)
			if i == j {
				continue
			}
			sum += vecmath.Distance(clusters[i].Centroid, clusters[j].Centroid)
			count++
		}
	}
	return sum / float64(count)
}

// CleanupEmptyClusters deletes clusters of the tenant with no members and
// returns how many were removed.
func (m *Manager) CleanupEmptyClusters(ctx context.Context, tenantID string) (int, error) {
	clusters, err := m.store.ListClusters(ctx, vectorstore.ClusterFilter{TenantID: tenantID})
	if err != nil {
		return 0, fmt.Errorf("listing clusters: %w", err)
	}

	deleted := 0
	for _, c := range clusters {
		members, err := m.store.ListMemberships(ctx, c.ID)
		if err != nil {
			return deleted, fmt.Errorf("listing members of %s: %w", c.ID, err)
		}
		if len(members) > 0 {
			continue
		}
		if err := m.store.DeleteCluster(ctx, c.ID); err != nil {
			return deleted, fmt.Errorf("deleting cluster %s: %w", c.ID, err)
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.Info("removed empty clusters", zap.String("tenant_id", tenantID), zap.Int("count", deleted))
	}
	return deleted, nil
}

// CleanupOrphanedMemberships removes memberships whose document or cluster
// no longer exists. Memberships of documents owned by another tenant are
// left alone unless tenantID is empty.
func (m *Manager) CleanupOrphanedMemberships(ctx context.Context, tenantID string) (int, error) {
	memberships, err := m.store.ListMemberships(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("listing memberships: %w", err)
	}

	removed := 0
	for _, mem := range memberships {
		orphan := false

		doc, err := m.store.GetDocument(ctx, mem.DocumentID)
		switch {
		case errors.Is(err, vectorstore.ErrNotFound):
			orphan = true
		case err != nil:
			return removed, fmt.Errorf("reading document %s: %w", mem.DocumentID, err)
		case tenantID != "" && doc.TenantID != tenantID:
			continue
		}

		if !orphan {
			_, err := m.store.GetCluster(ctx, mem.ClusterID)
			switch {
			case errors.Is(err, vectorstore.ErrNotFound):
				orphan = true
			case err != nil:
				return removed, fmt.Errorf("reading cluster %s: %w", mem.ClusterID, err)
			}
		}

		if !orphan {
			continue
		}
		if err := m.store.DeleteMembership(ctx, mem.DocumentID); err != nil {
			return removed, fmt.Errorf("deleting membership of %s: %w", mem.DocumentID, err)
		}
		removed++
	}
	return removed, nil
}

// Cleanup removes orphaned memberships, then empty clusters.
func (m *Manager) Cleanup(ctx context.Context, tenantID string) (*CleanupResult, error) {
	res := &CleanupResult{}
	var err error
	if res.MembershipsDeleted, err = m.CleanupOrphanedMemberships(ctx, tenantID); err != nil {
		return res, err
	}
	if res.ClustersDeleted, err = m.CleanupEmptyClusters(ctx, tenantID); err != nil {
		return res, err
	}
	return res, nil
}
