package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of vectors NewCached keeps when given a
// non-positive size.
const DefaultCacheSize = 1000

// CachedProvider wraps a Provider with an LRU of vectors keyed by text and
// model. Cache hits report zero tokens.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of size entries.
func NewCached(inner Provider, size int) *CachedProvider {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedProvider{inner: inner, cache: cache}
}

func (c *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.Model()))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector when present.
func (c *CachedProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return &Embedding{Vector: vec}, nil
	}

	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, emb.Vector)
	return emb, nil
}

// EmbedBatch embeds only the texts missing from the cache, in one call.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	out := &BatchEmbedding{Vectors: make([][]float32, len(texts))}
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			out.Vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out.Vectors[idx] = fresh.Vectors[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh.Vectors[j])
	}
	out.TotalTokens = fresh.TotalTokens
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedProvider) Len() int { return c.cache.Len() }

func (c *CachedProvider) Dimension() int { return c.inner.Dimension() }
func (c *CachedProvider) Model() string  { return c.inner.Model() }

// Close purges the cache and closes the wrapped provider.
func (c *CachedProvider) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
