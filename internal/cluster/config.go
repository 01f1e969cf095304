package cluster

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// Config tunes assignment and rebalancing.
type Config struct {
	// SimilarityThreshold is the minimum similarity for joining an
	// existing cluster. Default: 0.8
	SimilarityThreshold float64

	// MaxClusters bounds clusters per tenant and content type. Default: 50
	MaxClusters int

	// MinDocumentsPerCluster is the minimum population a content type needs
	// before rebalancing touches it. Default: 5
	MinDocumentsPerCluster int

	// RebalanceThreshold is the similarity gain required to move a
	// document during reassignment. Default: 0.1
	RebalanceThreshold float64

	// MaxIterations caps Lloyd iterations. Default: 10
	MaxIterations int

	// ConvergenceThreshold stops k-means once the fraction of reassigned
	// points drops below it. Default: 0.01
	ConvergenceThreshold float64

	// Seed drives k-means++ sampling. Zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns the default clustering configuration.
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold:    0.8,
		MaxClusters:            50,
		MinDocumentsPerCluster: 5,
		RebalanceThreshold:     0.1,
		MaxIterations:          10,
		ConvergenceThreshold:   0.01,
	}
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	switch {
	case c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity threshold %v outside [-1, 1]", vectorstore.ErrInvalidConfig, c.SimilarityThreshold)
	case c.MaxClusters < 1:
		return fmt.Errorf("%w: max clusters must be at least 1", vectorstore.ErrInvalidConfig)
	case c.MinDocumentsPerCluster < 1:
		return fmt.Errorf("%w: min documents per cluster must be at least 1", vectorstore.ErrInvalidConfig)
	case c.RebalanceThreshold < 0:
		return fmt.Errorf("%w: rebalance threshold must not be negative", vectorstore.ErrInvalidConfig)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max iterations must be at least 1", vectorstore.ErrInvalidConfig)
	case c.ConvergenceThreshold < 0 || c.ConvergenceThreshold > 1:
		return fmt.Errorf("%w: convergence threshold %v outside [0, 1]", vectorstore.ErrInvalidConfig, c.ConvergenceThreshold)
	}
	return nil
}

func (c *Config) seed() int64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return time.Now().UnixNano()
}
