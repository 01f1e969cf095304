// Package cluster organizes document embeddings into similarity clusters.
//
// Single documents are placed greedily: the most similar cluster of the same
// tenant and content type wins when it clears SimilarityThreshold, otherwise
// a new cluster is seeded until MaxClusters is reached. After every
// placement the owning centroid is recomputed from all current members.
//
// Rebalancing runs batch k-means per tenant and content type, choosing k
// with the elbow method over WCSS and seeding centroids with k-means++.
// Distance throughout is 1 - cosine similarity.
//
// Cluster state is advisory. Nothing here locks across calls, so a
// rebalance racing with ingestion may persist a slightly stale centroid
// that the next assignment or rebalance corrects.
package cluster
