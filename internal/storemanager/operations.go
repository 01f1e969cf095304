package storemanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/embedlife/internal/cluster"
	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// ReindexOptions throttles a full reindex.
type ReindexOptions struct {
	// BatchSize defaults to 50.
	BatchSize int
	// Delay separates batches.
	Delay time.Duration
}

// ReindexResult summarizes a full reindex.
type ReindexResult struct {
	Processed int                      `json:"processed"`
	Failed    int                      `json:"failed"`
	Errors    []string                 `json:"errors,omitempty"`
	Rebalance *cluster.RebalanceResult `json:"rebalance,omitempty"`
	Duration  time.Duration            `json:"duration"`
}

// ReindexStore re-embeds every parent document of a tenant in batches,
// then rebalances its clusters and refreshes statistics. An empty tenantID
// covers every tenant. Each document is reassigned from its new embedding
// as it is reindexed, so groups too small to rebalance stay clustered.
// Documents that fail to embed keep their stored version.
//
// Per-document failures are collected in the result. The returned error
// is set only when listing documents fails or a reindex is already running.
func (m *Manager) ReindexStore(ctx context.Context, tenantID string, opts ReindexOptions) (*ReindexResult, error) {
	if err := m.maint.begin(OpReindexing); err != nil {
		return nil, err
	}
	return m.reindex(ctx, tenantID, opts)
}

// StartReindex claims the reindexing operation and runs it in the
// background, passing the outcome to done when it is non-nil. Returns
// ErrMaintenanceInProgress without starting anything when a reindex is
// already running.
func (m *Manager) StartReindex(ctx context.Context, tenantID string, opts ReindexOptions, done func(*ReindexResult, error)) error {
	if err := m.maint.begin(OpReindexing); err != nil {
		return err
	}
	go func() {
		res, err := m.reindex(ctx, tenantID, opts)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

// reindex runs a reindex whose operation state the caller has claimed.
func (m *Manager) reindex(ctx context.Context, tenantID string, opts ReindexOptions) (*ReindexResult, error) {
	ctx, span := m.tracer.Start(ctx, "storemanager.ReindexStore")
	defer span.End()

	start := m.now()
	res := &ReindexResult{}
	var opErr error
	defer func() { m.maint.end(OpReindexing, opErr) }()

	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	docs, err := m.store.ListDocuments(ctx, vectorstore.DocumentFilter{TenantID: tenantID, ParentsOnly: true})
	if err != nil {
		opErr = fmt.Errorf("listing documents: %w", err)
		return nil, opErr
	}

	for begin := 0; begin < len(docs); begin += opts.BatchSize {
		if begin > 0 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Delay):
			}
		}
		end := min(begin+opts.BatchSize, len(docs))
		batch := docs[begin:end]
		errs := make([]error, len(batch))

		var g errgroup.Group
		for i, doc := range batch {
			g.Go(func() error {
				r, err := m.indexer.ReindexDocument(ctx, doc.ID, doc.Content, doc.Title, indexer.Options{
					EnableClustering: m.config.EnableClustering,
				})
				switch {
				case err != nil:
					errs[i] = err
				case !r.Success:
					errs[i] = errors.New(strings.Join(r.Errors, "; "))
				}
				return nil
			})
		}
		_ = g.Wait()

		for i, err := range errs {
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", batch[i].ID, err))
				continue
			}
			res.Processed++
		}
		m.maint.progress(OpReindexing, float64(end)/float64(len(docs)))
	}

	if rb, err := m.RebalanceClusters(ctx, tenantID, ""); err != nil {
		m.logger.Warn("rebalance after reindex failed", zap.Error(err))
	} else {
		res.Rebalance = rb
	}
	if _, err := m.Statistics(ctx, tenantID); err != nil {
		m.logger.Warn("statistics refresh after reindex failed", zap.Error(err))
	}

	res.Duration = m.now().Sub(start)
	m.logger.Info("store reindexed",
		zap.String("tenant_id", tenantID),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// RebalanceClusters runs k-means rebalancing while tracking the clustering
// state.
func (m *Manager) RebalanceClusters(ctx context.Context, tenantID string, contentType vectorstore.ContentType) (*cluster.RebalanceResult, error) {
	if err := m.maint.begin(OpClustering); err != nil {
		return nil, err
	}
	res, err := m.clusters.RebalanceClusters(ctx, tenantID, contentType)
	m.maint.end(OpClustering, err)
	if err != nil {
		return nil, err
	}
	m.logger.Info("clusters rebalanced",
		zap.String("tenant_id", tenantID),
		zap.Int("types", len(res.Types)),
		zap.Int("documents_moved", res.DocumentsMoved()))
	return res, nil
}

// Cleanup removes orphaned memberships and empty clusters.
func (m *Manager) Cleanup(ctx context.Context, tenantID string) (*cluster.CleanupResult, error) {
	if err := m.maint.begin(OpCleanup); err != nil {
		return nil, err
	}
	res, err := m.clusters.Cleanup(ctx, tenantID)
	m.maint.end(OpCleanup, err)
	if err != nil {
		return nil, err
	}
	if res.ClustersDeleted > 0 || res.MembershipsDeleted > 0 {
		m.logger.Info("cluster cleanup",
			zap.String("tenant_id", tenantID),
			zap.Int("clusters_deleted", res.ClustersDeleted),
			zap.Int("memberships_deleted", res.MembershipsDeleted))
	}
	return res, nil
}

// Health check names.
const (
	CheckStore      = "store"
	CheckSearch     = "search"
	CheckClustering = "clustering"
)

// healthTenant is searched when HealthCheck gets no tenant.
const healthTenant = "_health"

// HealthReport is the outcome of HealthCheck.
type HealthReport struct {
	Healthy   bool            `json:"healthy"`
	Checks    map[string]bool `json:"checks"`
	Issues    []string        `json:"issues,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
}

// HealthCheck probes the store, a trivial search and, when clustering is
// enabled, cluster statistics. Failures are reported, never returned.
func (m *Manager) HealthCheck(ctx context.Context, tenantID string) *HealthReport {
	ctx, span := m.tracer.Start(ctx, "storemanager.HealthCheck")
	defer span.End()

	report := &HealthReport{Checks: map[string]bool{}, CheckedAt: m.now()}
	check := func(name string, err error) {
		report.Checks[name] = err == nil
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("%s: %v", name, err))
		}
	}

	check(CheckStore, m.store.Ping(ctx))

	searchTenant := tenantID
	if searchTenant == "" {
		searchTenant = healthTenant
	}
	_, err := m.search.Search(ctx, "health check", search.Options{TenantID: searchTenant, Limit: 1, SkipCache: true})
	check(CheckSearch, err)

	if m.config.EnableClustering {
		_, err := m.clusters.GetClusterStats(ctx, tenantID)
		check(CheckClustering, err)
	}

	report.Healthy = len(report.Issues) == 0
	if !report.Healthy {
		m.logger.Warn("health check failed", zap.Strings("issues", report.Issues))
	}
	return report
}

// Statistics describes a tenant store.
type Statistics struct {
	TotalDocuments      int                             `json:"total_documents"`
	TotalChunks         int                             `json:"total_chunks"`
	DocumentsByType     map[vectorstore.ContentType]int `json:"documents_by_type"`
	TotalClusters       int                             `json:"total_clusters"`
	ClusterDistribution map[string]int                  `json:"cluster_distribution"`
	CacheHitRate        float64                         `json:"cache_hit_rate"`
	// StorageBytes approximates content bytes plus 4 bytes per embedding
	// dimension across parents and chunks.
	StorageBytes int64     `json:"storage_bytes"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Statistics computes store statistics for a tenant, or every tenant when
// tenantID is empty. The result is also kept as LastStatistics.
func (m *Manager) Statistics(ctx context.Context, tenantID string) (*Statistics, error) {
	docs, err := m.store.ListDocuments(ctx, vectorstore.DocumentFilter{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	clusters, err := m.store.ListClusters(ctx, vectorstore.ClusterFilter{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}

	stats := &Statistics{
		DocumentsByType:     map[vectorstore.ContentType]int{},
		TotalClusters:       len(clusters),
		ClusterDistribution: make(map[string]int, len(clusters)),
		CacheHitRate:        m.search.CacheStats().HitRate,
		GeneratedAt:         m.now(),
	}
	for _, d := range docs {
		stats.StorageBytes += int64(len(d.Content) + 4*len(d.Embedding))
		if d.IsChunk() {
			stats.TotalChunks++
			continue
		}
		stats.TotalDocuments++
		stats.DocumentsByType[d.ContentType]++
	}
	for _, c := range clusters {
		stats.ClusterDistribution[c.ID] = c.MemberCount
	}

	m.maint.mu.Lock()
	m.lastStats = stats
	m.maint.mu.Unlock()
	return stats, nil
}

// LastStatistics returns the most recently computed statistics, or nil.
func (m *Manager) LastStatistics() *Statistics {
	m.maint.mu.Lock()
	defer m.maint.mu.Unlock()
	return m.lastStats
}
