package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts executed searches.
	// Labels: strategy (vector, hybrid, cluster, cached)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of searches by strategy",
		},
		[]string{"strategy"},
	)

	// CacheRequests counts response cache lookups.
	// Labels: result (hit, miss)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "search",
			Name:      "cache_requests_total",
			Help:      "Search response cache lookups",
		},
		[]string{"result"},
	)

	// SearchDuration tracks end-to-end search latency.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "embedlife",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"strategy"},
	)
)
