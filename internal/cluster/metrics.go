package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssignmentsTotal counts document placements.
	// Labels: outcome (joined, created, forced, moved, kept)
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "cluster",
			Name:      "assignments_total",
			Help:      "Total number of cluster assignment decisions",
		},
		[]string{"outcome"},
	)

	// RebalanceDuration tracks full rebalance passes.
	RebalanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "embedlife",
			Subsystem: "cluster",
			Name:      "rebalance_duration_seconds",
			Help:      "Duration of cluster rebalance passes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	// KMeansIterations tracks Lloyd iterations per k-means run.
	KMeansIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "embedlife",
			Subsystem: "cluster",
			Name:      "kmeans_iterations",
			Help:      "Lloyd iterations per k-means run",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 20},
		},
	)
)
