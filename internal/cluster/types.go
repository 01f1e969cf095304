package cluster

import (
	"time"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// Assignment is the outcome of placing one document.
type Assignment struct {
	DocumentID string
	ClusterID  string
	Similarity float64
	// Created is true when a new cluster was seeded for the document.
	Created bool
	// Forced is true when MaxClusters was reached and the document joined
	// the best cluster below the similarity threshold.
	Forced bool
}

// Reassignment is the outcome of re-evaluating a document's cluster.
type Reassignment struct {
	DocumentID        string
	FromClusterID     string
	ToClusterID       string
	CurrentSimilarity float64
	BestSimilarity    float64
	Moved             bool
	// Assignment is set when the document had no cluster and was assigned.
	Assignment *Assignment
}

// KMeansResult is the outcome of one k-means run.
type KMeansResult struct {
	Centroids [][]float32
	// Assignments maps each input vector to a centroid index.
	Assignments []int
	Iterations  int
	Converged   bool
	WCSS        float64
}

// TypeRebalance reports the rebalance of one tenant and content type.
type TypeRebalance struct {
	TenantID           string
	ContentType        vectorstore.ContentType
	Documents          int
	Skipped            bool
	K                  int
	Iterations         int
	Converged          bool
	WCSS               float64
	Improvement        float64
	ClustersCreated    int
	ClustersUpdated    int
	ClustersDeleted    int
	DocumentsMoved     int
	MembershipsDropped int
}

// RebalanceResult aggregates a rebalance pass.
type RebalanceResult struct {
	Types    []TypeRebalance
	Duration time.Duration
}

// DocumentsMoved sums moved documents over all types.
func (r *RebalanceResult) DocumentsMoved() int {
	n := 0
	for _, t := range r.Types {
		n += t.DocumentsMoved
	}
	return n
}

// SizeBuckets counts clusters by member count.
type SizeBuckets struct {
	Small  int `json:"small"`  // < 10 members
	Medium int `json:"medium"` // 10..50 members
	Large  int `json:"large"`  // > 50 members
}

// Stats summarizes a tenant's clusters.
type Stats struct {
	TotalClusters          int                             `json:"total_clusters"`
	TotalMembers           int                             `json:"total_members"`
	ByContentType          map[vectorstore.ContentType]int `json:"by_content_type"`
	Sizes                  SizeBuckets                     `json:"sizes"`
	AverageIntraSimilarity float64                         `json:"average_intra_similarity"`
	AverageInterDistance   float64                         `json:"average_inter_distance"`
	// SilhouetteScore is not computed and is always 0.
	SilhouetteScore float64 `json:"silhouette_score"`
}

// CleanupResult reports removed clusters and memberships.
type CleanupResult struct {
	ClustersDeleted    int
	MembershipsDeleted int
}
