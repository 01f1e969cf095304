package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIndexed counts index attempts.
	// Labels: result (success, failure)
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "indexer",
			Name:      "documents_total",
			Help:      "Total number of documents indexed",
		},
		[]string{"result"},
	)

	// ChunksPerDocument tracks chunking granularity.
	ChunksPerDocument = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "embedlife",
			Subsystem: "indexer",
			Name:      "chunks_per_document",
			Help:      "Number of chunks produced per indexed document",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
		},
	)

	// TokensTotal counts embedding tokens spent by the indexer.
	TokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "indexer",
			Name:      "tokens_total",
			Help:      "Total embedding tokens consumed by indexing",
		},
	)
)
