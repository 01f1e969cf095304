package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedProvider bounds the request rate to a wrapped Provider. Each
// Embed or EmbedBatch call consumes one token.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter allowing rps requests per second.
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimitedProvider {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedProvider) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limit: %w", err)
	}
	return nil
}

// Embed waits for a token, then embeds.
func (r *RateLimitedProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token, then embeds the batch.
func (r *RateLimitedProvider) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

func (r *RateLimitedProvider) Dimension() int { return r.inner.Dimension() }
func (r *RateLimitedProvider) Model() string  { return r.inner.Model() }
func (r *RateLimitedProvider) Close() error   { return r.inner.Close() }
