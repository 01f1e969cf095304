package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "EMBEDLIFE_"
)

// defaults is loaded before the config file and the environment.
const defaults = `
server:
  http_host: 127.0.0.1
  http_port: 8085
  shutdown_timeout: 10s
  requests_per_second: 0
logging:
  level: info
  format: json
store:
  provider: memory
  collection_prefix: embedlife
  dimension: 0
  qdrant_host: localhost
  qdrant_port: 6334
embeddings:
  provider: static
  dimension: 384
  burst: 1
  cache_size: 1000
indexer:
  batch_size: 10
  batch_delay: 1s
  max_chunk_size: 1000
  overlap_size: 100
  redact_secrets: true
  redaction_string: "[REDACTED]"
cluster:
  similarity_threshold: 0.8
  max_clusters: 50
  min_documents_per_cluster: 5
  rebalance_threshold: 0.1
  max_iterations: 10
  convergence_threshold: 0.01
search:
  cache_ttl: 5m
  cache_size: 1000
maintenance:
  enable_clustering: true
  enable_compression: false
  max_backups: 10
  scheduler_enabled: false
  rebalance_schedule: "0 0 */6 * * *"
  cleanup_schedule: "0 30 * * * *"
  job_timeout: 10m
events:
  subject_prefix: embedlife.events
ingest:
  enabled: false
  content_type: content
  extensions: [".md", ".markdown", ".txt", ".html", ".htm"]
  debounce: 500ms
telemetry:
  enabled: false
  endpoint: localhost:4317
  protocol: grpc
  insecure: true
  service_name: embedlife
  sampling_rate: 1.0
  metrics_enabled: true
  export_interval: 15s
  shutdown_timeout: 5s
`

// Load returns the configuration from the default file location and the
// environment.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from a YAML file, then overrides it
// with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (EMBEDLIFE_SERVER_HTTP_PORT, ...)
//  2. YAML config file (~/.config/embedlife/config.yaml)
//  3. Built-in defaults
//
// The file must live under ~/.config/embedlife/ or /etc/embedlife/, be at
// most 1MB and have 0600 or 0400 permissions. A missing file is not an
// error.
//
// Environment variables drop the EMBEDLIFE_ prefix and split on the first
// underscore:
//
//	EMBEDLIFE_SERVER_HTTP_PORT   -> server.http_port
//	EMBEDLIFE_STORE_QDRANT_HOST  -> store.qdrant_host
//	EMBEDLIFE_MAINTENANCE_TENANTS=a,b -> maintenance.tenants
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if content, err := readConfigFile(configPath); err != nil {
		return nil, err
	} else if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps EMBEDLIFE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile returns the file content, or nil when it does not exist.
// Properties are checked on the open descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// DefaultDir returns ~/.config/embedlife.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "embedlife"), nil
}

// EnsureConfigDir creates the config directory with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := DefaultDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath checks that path is inside an allowed directory.
// It runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	userDir, err := DefaultDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, "/etc/embedlife"} {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolved
		}
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/embedlife/ or /etc/embedlife/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
