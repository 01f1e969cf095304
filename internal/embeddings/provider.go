package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedding is a single vector with the tokens spent producing it.
// TokenCount is 0 when the backend does not report usage.
type Embedding struct {
	Vector     []float32
	TokenCount int
}

// BatchEmbedding holds one vector per input text, in input order.
type BatchEmbedding struct {
	Vectors     [][]float32
	TotalTokens int
}

// Provider generates embeddings.
type Provider interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) (*Embedding, error)
	// EmbedBatch embeds texts in one request where the backend allows it.
	EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Model returns the model identifier.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "tei", "openai", "fastembed" or "static".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the server URL for tei and openai.
	BaseURL string
	// APIKey is sent to openai-compatible servers.
	APIKey string
	// Dimension overrides the dimension derived from the model name.
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// RequestsPerSecond enables the rate limiter when > 0.
	RequestsPerSecond float64
	// Burst is the rate limiter burst size. Default: 1
	Burst int
	// CacheSize enables the vector LRU when > 0.
	CacheSize int
}

// NewProvider creates an embedding provider based on the configuration,
// wrapped with rate limiting and caching when configured.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Provider {
	case "tei":
		p, err = NewTEIProvider(TEIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Dimension: cfg.Dimension})
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey, Dimension: cfg.Dimension})
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	case "static", "":
		dim := cfg.Dimension
		if dim == 0 {
			dim = DefaultStaticDimension
		}
		p = NewStaticProvider(dim)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimited(p, cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.CacheSize > 0 {
		p = NewCached(p, cfg.CacheSize)
	}
	return p, nil
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"), strings.Contains(lower, "ada-002"):
		return 1536
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}

// checkTexts rejects empty batches and blank texts.
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: text %d is blank", ErrEmptyInput, i)
		}
	}
	return nil
}
