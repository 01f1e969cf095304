package config

import (
	"github.com/fyrsmithlabs/embedlife/internal/cluster"
	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/redact"
	"github.com/fyrsmithlabs/embedlife/internal/logging"
	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/telemetry"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	return logging.FromStrings(c.Logging.Level, c.Logging.Format)
}

// VectorStoreConfig returns the store factory configuration. dimension is
// the embedding provider's dimension, used when store.dimension is unset.
func (c *Config) VectorStoreConfig(dimension int) vectorstore.Config {
	if c.Store.Dimension > 0 {
		dimension = c.Store.Dimension
	}
	return vectorstore.Config{
		Provider: c.Store.Provider,
		Memory: vectorstore.MemoryConfig{
			CollectionPrefix: c.Store.CollectionPrefix,
			Dimension:        dimension,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:             c.Store.QdrantHost,
			Port:             c.Store.QdrantPort,
			APIKey:           c.Store.QdrantAPIKey.Value(),
			UseTLS:           c.Store.QdrantTLS,
			CollectionPrefix: c.Store.CollectionPrefix,
			VectorSize:       uint64(dimension),
		},
	}
}

// EmbeddingsConfig returns the provider configuration.
func (c *Config) EmbeddingsConfig() embeddings.ProviderConfig {
	e := c.Embeddings
	return embeddings.ProviderConfig{
		Provider:          e.Provider,
		Model:             e.Model,
		BaseURL:           e.BaseURL,
		APIKey:            e.APIKey.Value(),
		Dimension:         e.Dimension,
		CacheDir:          e.CacheDir,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
		CacheSize:         e.CacheSize,
	}
}

// ManagerConfig returns the store manager configuration.
func (c *Config) ManagerConfig() *storemanager.Config {
	var redaction *redact.Config
	if c.Indexer.RedactSecrets {
		rc := redact.DefaultConfig()
		rc.AllowList = c.Indexer.RedactAllowList
		if c.Indexer.RedactionString != "" {
			rc.Replacement = c.Indexer.RedactionString
		}
		redaction = &rc
	}
	return &storemanager.Config{
		Redaction:         redaction,
		EnableClustering:  c.Maintenance.EnableClustering,
		EnableCompression: c.Maintenance.EnableCompression,
		MaxBackups:        c.Maintenance.MaxBackups,
		Indexer: &indexer.Config{
			BatchSize:    c.Indexer.BatchSize,
			BatchDelay:   c.Indexer.BatchDelay.Duration(),
			MaxChunkSize: c.Indexer.MaxChunkSize,
			OverlapSize:  c.Indexer.OverlapSize,
		},
		Cluster: &cluster.Config{
			SimilarityThreshold:    c.Cluster.SimilarityThreshold,
			MaxClusters:            c.Cluster.MaxClusters,
			MinDocumentsPerCluster: c.Cluster.MinDocumentsPerCluster,
			RebalanceThreshold:     c.Cluster.RebalanceThreshold,
			MaxIterations:          c.Cluster.MaxIterations,
			ConvergenceThreshold:   c.Cluster.ConvergenceThreshold,
			Seed:                   c.Cluster.Seed,
		},
		Search: &search.Config{
			CacheTTL:  c.Search.CacheTTL.Duration(),
			CacheSize: c.Search.CacheSize,
		},
	}
}

// SchedulerConfig returns the maintenance scheduler configuration.
func (c *Config) SchedulerConfig() storemanager.SchedulerConfig {
	return storemanager.SchedulerConfig{
		Tenants:           c.Maintenance.Tenants,
		RebalanceSchedule: c.Maintenance.RebalanceSchedule,
		CleanupSchedule:   c.Maintenance.CleanupSchedule,
		Timeout:           c.Maintenance.JobTimeout.Duration(),
	}
}

// TelemetryConfig returns the OpenTelemetry configuration. version is the
// build version reported as service.version.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	t := c.Telemetry
	return &telemetry.Config{
		Enabled:         t.Enabled,
		Endpoint:        t.Endpoint,
		ServiceName:     t.ServiceName,
		ServiceVersion:  version,
		Protocol:        t.Protocol,
		Insecure:        t.Insecure,
		SamplingRate:    t.SamplingRate,
		MetricsEnabled:  t.MetricsEnabled,
		ExportInterval:  t.ExportInterval.Duration(),
		ShutdownTimeout: t.ShutdownTimeout.Duration(),
	}
}
