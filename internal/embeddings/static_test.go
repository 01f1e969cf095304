package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
)

func TestStaticProvider_Deterministic(t *testing.T) {
	p := NewStaticProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "wireless noise cancelling headphones")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "wireless noise cancelling headphones")
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.Len(t, a.Vector, 64)
	assert.InDelta(t, 1.0, vecmath.CosineSimilarity(a.Vector, a.Vector), 1e-6)
	assert.Equal(t, 4, a.TokenCount)
}

func TestStaticProvider_SimilarTextsAreCloser(t *testing.T) {
	p := NewStaticProvider(DefaultStaticDimension)
	ctx := context.Background()

	batch, err := p.EmbedBatch(ctx, []string{
		"bluetooth headphones with noise cancelling",
		"noise cancelling bluetooth headphones",
		"quarterly tax filing deadline reminder",
	})
	require.NoError(t, err)
	require.Len(t, batch.Vectors, 3)

	near := vecmath.CosineSimilarity(batch.Vectors[0], batch.Vectors[1])
	far := vecmath.CosineSimilarity(batch.Vectors[0], batch.Vectors[2])
	assert.Greater(t, near, far)
}

func TestStaticProvider_Errors(t *testing.T) {
	p := NewStaticProvider(0)
	assert.Equal(t, DefaultStaticDimension, p.Dimension())
	assert.Equal(t, StaticModel, p.Model())

	_, err := p.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	require.NoError(t, p.Close())
	_, err = p.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestStaticProvider_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStaticProvider(8).EmbedBatch(ctx, []string{"a b"})
	assert.ErrorIs(t, err, context.Canceled)
}
