package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_Memory(t *testing.T) {
	for _, provider := range []string{"", "memory"} {
		store, err := NewStore(context.Background(), Config{Provider: provider}, nil)
		require.NoError(t, err)
		_, ok := store.(*MemoryStore)
		assert.True(t, ok)
		require.NoError(t, store.Close())
	}
}

func TestNewStore_UnknownProvider(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Provider: "pinecone"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewStore_QdrantInvalidConfig(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Provider: "qdrant"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig, "missing vector size must fail before dialing")
}
