// Package config loads the embedlife daemon and CLI configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete embedlife configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Store       StoreConfig       `koanf:"store"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Indexer     IndexerConfig     `koanf:"indexer"`
	Cluster     ClusterConfig     `koanf:"cluster"`
	Search      SearchConfig      `koanf:"search"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
	Events      EventsConfig      `koanf:"events"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port" validate:"min=1,max=65535"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// RequestsPerSecond limits API calls per client IP. Zero disables.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// StoreConfig selects the vector store backend.
//
// Qdrant fields are flattened so they map onto single environment
// variables such as EMBEDLIFE_STORE_QDRANT_HOST.
type StoreConfig struct {
	Provider         string `koanf:"provider" validate:"oneof=memory qdrant"`
	CollectionPrefix string `koanf:"collection_prefix" validate:"required"`
	Dimension        int    `koanf:"dimension" validate:"gte=0"`
	QdrantHost       string `koanf:"qdrant_host" validate:"required_if=Provider qdrant"`
	QdrantPort       int    `koanf:"qdrant_port" validate:"min=1,max=65535"`
	QdrantAPIKey     Secret `koanf:"qdrant_api_key"`
	QdrantTLS        bool   `koanf:"qdrant_tls"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider          string  `koanf:"provider" validate:"oneof=static tei openai fastembed"`
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url" validate:"omitempty,url"`
	APIKey            Secret  `koanf:"api_key"`
	Dimension         int     `koanf:"dimension" validate:"gte=0"`
	CacheDir          string  `koanf:"cache_dir"`
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"gte=0"`
	CacheSize         int     `koanf:"cache_size" validate:"gte=0"`
}

// IndexerConfig tunes chunking and batch indexing.
type IndexerConfig struct {
	BatchSize    int      `koanf:"batch_size" validate:"min=1"`
	BatchDelay   Duration `koanf:"batch_delay"`
	MaxChunkSize int      `koanf:"max_chunk_size" validate:"min=1"`
	OverlapSize  int      `koanf:"overlap_size" validate:"gte=0,ltfield=MaxChunkSize"`

	// RedactSecrets scrubs credentials and payment card numbers from
	// content before it is embedded.
	RedactSecrets   bool     `koanf:"redact_secrets"`
	RedactionString string   `koanf:"redaction_string"`
	RedactAllowList []string `koanf:"redact_allow_list"`
}

// ClusterConfig tunes cluster assignment and rebalancing.
type ClusterConfig struct {
	SimilarityThreshold    float64 `koanf:"similarity_threshold" validate:"gte=-1,lte=1"`
	MaxClusters            int     `koanf:"max_clusters" validate:"min=1"`
	MinDocumentsPerCluster int     `koanf:"min_documents_per_cluster" validate:"min=1"`
	RebalanceThreshold     float64 `koanf:"rebalance_threshold" validate:"gte=0"`
	MaxIterations          int     `koanf:"max_iterations" validate:"min=1"`
	ConvergenceThreshold   float64 `koanf:"convergence_threshold" validate:"gte=0,lte=1"`
	Seed                   int64   `koanf:"seed"`
}

// SearchConfig sizes the search response cache.
type SearchConfig struct {
	CacheTTL  Duration `koanf:"cache_ttl" validate:"gt=0"`
	CacheSize int      `koanf:"cache_size" validate:"min=1"`
}

// MaintenanceConfig controls the document lifecycle and scheduled jobs.
type MaintenanceConfig struct {
	EnableClustering  bool `koanf:"enable_clustering"`
	EnableCompression bool `koanf:"enable_compression"`
	MaxBackups        int  `koanf:"max_backups" validate:"gte=0"`

	// SchedulerEnabled runs rebalance and cleanup on cron schedules for
	// every tenant in Tenants.
	SchedulerEnabled  bool     `koanf:"scheduler_enabled"`
	Tenants           []string `koanf:"tenants" validate:"required_if=SchedulerEnabled true,dive,required"`
	RebalanceSchedule string   `koanf:"rebalance_schedule" validate:"required"`
	CleanupSchedule   string   `koanf:"cleanup_schedule" validate:"required"`
	JobTimeout        Duration `koanf:"job_timeout" validate:"gt=0"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	// NATSURL enables publishing to NATS when set.
	NATSURL       string `koanf:"nats_url" validate:"omitempty,url"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
}

// IngestConfig configures the inbox directory watcher.
type IngestConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Dir         string   `koanf:"dir" validate:"required_if=Enabled true"`
	TenantID    string   `koanf:"tenant_id" validate:"required_if=Enabled true"`
	ContentType string   `koanf:"content_type" validate:"oneof=product customer order content faq knowledge_base review marketing support_ticket conversation"`
	Extensions  []string `koanf:"extensions"`
	Debounce    Duration `koanf:"debounce"`
}

// TelemetryConfig configures OTLP trace and metric export.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint" validate:"required_if=Enabled true"`
	Protocol        string   `koanf:"protocol" validate:"oneof=grpc http/protobuf"`
	Insecure        bool     `koanf:"insecure"`
	ServiceName     string   `koanf:"service_name" validate:"required"`
	SamplingRate    float64  `koanf:"sampling_rate" validate:"gte=0,lte=1"`
	MetricsEnabled  bool     `koanf:"metrics_enabled"`
	ExportInterval  Duration `koanf:"export_interval" validate:"gt=0"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Validate checks every section against its validation tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
