package embeddings

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider records how many texts reach the backend.
type countingProvider struct {
	*StaticProvider
	texts atomic.Int64
	calls atomic.Int64
}

func (c *countingProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	c.calls.Add(1)
	c.texts.Add(1)
	return c.StaticProvider.Embed(ctx, text)
}

func (c *countingProvider) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error) {
	c.calls.Add(1)
	c.texts.Add(int64(len(texts)))
	return c.StaticProvider.EmbedBatch(ctx, texts)
}

func TestCachedProvider(t *testing.T) {
	inner := &countingProvider{StaticProvider: NewStaticProvider(16)}
	c := NewCached(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "red shoes")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "red shoes")
	require.NoError(t, err)
	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, int64(1), inner.texts.Load())
	assert.Zero(t, second.TokenCount)

	batch, err := c.EmbedBatch(ctx, []string{"red shoes", "blue hat", "green scarf"})
	require.NoError(t, err)
	require.Len(t, batch.Vectors, 3)
	assert.Equal(t, first.Vector, batch.Vectors[0])
	assert.Equal(t, int64(3), inner.texts.Load(), "only misses reach the backend")
	assert.Equal(t, 3, c.Len())

	_, err = c.EmbedBatch(ctx, []string{"blue hat", "green scarf"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), inner.texts.Load())

	assert.Equal(t, 16, c.Dimension())
	require.NoError(t, c.Close())
	assert.Zero(t, c.Len())
}

func TestRateLimitedProvider(t *testing.T) {
	inner := &countingProvider{StaticProvider: NewStaticProvider(8)}
	r := NewRateLimited(inner, 1, 1)

	_, err := r.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.EmbedBatch(ctx, []string{"second"})
	require.Error(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, StaticModel, r.Model())
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr error
		check   func(t *testing.T, p Provider)
	}{
		{
			name: "static default",
			cfg:  ProviderConfig{},
			check: func(t *testing.T, p Provider) {
				assert.IsType(t, &StaticProvider{}, p)
				assert.Equal(t, DefaultStaticDimension, p.Dimension())
			},
		},
		{
			name: "tei with dimension from model",
			cfg:  ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"},
			check: func(t *testing.T, p Provider) {
				assert.Equal(t, 768, p.Dimension())
			},
		},
		{
			name: "openai",
			cfg:  ProviderConfig{Provider: "openai", Model: "text-embedding-3-small"},
			check: func(t *testing.T, p Provider) {
				assert.Equal(t, 1536, p.Dimension())
			},
		},
		{
			name: "wrapped with cache and limiter",
			cfg:  ProviderConfig{Provider: "static", Dimension: 32, RequestsPerSecond: 100, CacheSize: 5},
			check: func(t *testing.T, p Provider) {
				cached, ok := p.(*CachedProvider)
				require.True(t, ok)
				assert.IsType(t, &RateLimitedProvider{}, cached.inner)
				assert.Equal(t, 32, p.Dimension())
			},
		},
		{name: "unknown", cfg: ProviderConfig{Provider: "word2vec"}, wantErr: ErrInvalidConfig},
		{name: "tei without url", cfg: ProviderConfig{Provider: "tei"}, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer p.Close()
			tt.check(t, p)
		})
	}
}

func TestDetectDimensionFromModel(t *testing.T) {
	assert.Equal(t, 384, detectDimensionFromModel("BAAI/bge-small-en-v1.5"))
	assert.Equal(t, 512, detectDimensionFromModel("BAAI/bge-small-zh-v1.5"))
	assert.Equal(t, 3072, detectDimensionFromModel("text-embedding-3-large"))
	assert.Equal(t, 1024, detectDimensionFromModel("intfloat/e5-large"))
	assert.Equal(t, 384, detectDimensionFromModel("unknown"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "m", "embed", time.Millisecond, 1, nil)
	})
	assert.NotNil(t, defaultMetrics())
}
