package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/embedlife/internal/cluster"
	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/logging"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// failingProvider fails every batch whose first text contains trigger.
type failingProvider struct {
	*embeddings.StaticProvider
	trigger string
	calls   atomic.Int64
}

func (f *failingProvider) EmbedBatch(ctx context.Context, texts []string) (*embeddings.BatchEmbedding, error) {
	f.calls.Add(1)
	if f.trigger != "" && strings.Contains(texts[0], f.trigger) {
		return nil, fmt.Errorf("%w: upstream timeout", embeddings.ErrEmbeddingFailed)
	}
	return f.StaticProvider.EmbedBatch(ctx, texts)
}

// chunkFailingStore rejects chunk records.
type chunkFailingStore struct {
	*vectorstore.MemoryStore
}

func (s *chunkFailingStore) PutDocument(ctx context.Context, doc *vectorstore.Document) error {
	if doc.IsChunk() {
		return errors.New("disk full")
	}
	return s.MemoryStore.PutDocument(ctx, doc)
}

type stubAssigner struct {
	err        error
	ids        []string
	reassigned []string
}

func (s *stubAssigner) AssignDocument(_ context.Context, id string) (*cluster.Assignment, error) {
	s.ids = append(s.ids, id)
	if s.err != nil {
		return nil, s.err
	}
	return &cluster.Assignment{DocumentID: id, ClusterID: "cluster-1"}, nil
}

func (s *stubAssigner) ReassignDocument(_ context.Context, id string) (*cluster.Reassignment, error) {
	s.reassigned = append(s.reassigned, id)
	if s.err != nil {
		return nil, s.err
	}
	return &cluster.Reassignment{DocumentID: id, FromClusterID: "cluster-1", ToClusterID: "cluster-1"}, nil
}

func newMemoryStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestIndexer(t *testing.T, store vectorstore.Store, provider embeddings.Provider, assigner ClusterAssigner) *Indexer {
	t.Helper()
	if provider == nil {
		provider = embeddings.NewStaticProvider(32)
	}
	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	ix, err := New(cfg, store, provider, assigner, nil)
	require.NoError(t, err)
	return ix
}

func productOpts() Options {
	return Options{
		TenantID:    "acme",
		ContentType: vectorstore.ContentTypeProduct,
		Metadata:    vectorstore.Metadata{"sku": "HP-100", "price": 199.0, "color": "black"},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := newMemoryStore(t)
	_, err := New(nil, nil, embeddings.NewStaticProvider(8), nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	_, err = New(nil, store, nil, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestIndexDocument_ShortContent(t *testing.T) {
	store := newMemoryStore(t)
	ix := newTestIndexer(t, store, nil, nil)
	ctx := context.Background()

	res, err := ix.IndexDocument(ctx, "Noise cancelling headphones. Thirty hour battery.", "Headphones", productOpts())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.TotalChunks)
	assert.Equal(t, []string{res.DocumentID}, res.ChunkIDs)
	assert.Positive(t, res.TokenCount)

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, "Noise cancelling headphones. Thirty hour battery.", doc.Summary)
	assert.Equal(t, vectorstore.StatusActive, doc.Status)
	assert.Len(t, doc.Embedding, 32)

	rec, err := store.GetSideRecord(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sku": "HP-100", "price": 199.0}, rec.Fields)
}

func TestIndexDocument_LongContentScenario(t *testing.T) {
	store := newMemoryStore(t)
	provider := embeddings.NewStaticProvider(32)
	ix := newTestIndexer(t, store, provider, nil)
	ctx := context.Background()

	content := longText(42)
	require.InDelta(t, 3000, len(content), 100)

	opts := productOpts()
	opts.MaxChunkSize = 1000
	res, err := ix.IndexDocument(ctx, content, "Manual", opts)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.InDelta(t, 3, res.TotalChunks, 1)
	assert.Len(t, res.ChunkIDs, res.TotalChunks)

	parent, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, content, parent.Content)
	assert.Equal(t, res.TotalChunks, parent.ChunkCount)

	chunks := ChunkText(content, 1000, DefaultOverlapSize)
	first, err := provider.Embed(ctx, contextualize("Manual", Summarize(content), chunks[0].Text))
	require.NoError(t, err)
	assert.Equal(t, first.Vector, parent.Embedding, "parent carries the first chunk's embedding")

	children, err := store.ListDocuments(ctx, vectorstore.DocumentFilter{ParentID: res.DocumentID})
	require.NoError(t, err)
	require.Len(t, children, res.TotalChunks-1)
	for i, c := range children {
		assert.Equal(t, i+1, c.ChunkIndex)
		assert.Equal(t, res.TotalChunks, c.ChunkCount)
		assert.Less(t, c.ChunkIndex, c.ChunkCount)
		assert.Equal(t, "acme", c.TenantID)
		assert.Equal(t, vectorstore.ContentTypeProduct, c.ContentType)
		assert.Equal(t, chunks[i+1].Text, c.Content)
	}
}

func TestIndexDocument_InvalidOptions(t *testing.T) {
	ix := newTestIndexer(t, newMemoryStore(t), nil, nil)
	ctx := context.Background()

	_, err := ix.IndexDocument(ctx, "text", "", Options{ContentType: vectorstore.ContentTypeFAQ})
	assert.ErrorIs(t, err, vectorstore.ErrMissingTenant)

	_, err = ix.IndexDocument(ctx, "text", "", Options{TenantID: "acme", ContentType: "poem"})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = ix.IndexDocument(ctx, "  ", "", productOpts())
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestIndexDocument_EmbeddingFailure(t *testing.T) {
	store := newMemoryStore(t)
	provider := &failingProvider{StaticProvider: embeddings.NewStaticProvider(8), trigger: "Title: broken"}
	ix := newTestIndexer(t, store, provider, nil)

	res, err := ix.IndexDocument(context.Background(), "Some content.", "broken", productOpts())
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "upstream timeout")

	n, err := store.CountDocuments(context.Background(), vectorstore.DocumentFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexDocument_ChunkFailureIsPartial(t *testing.T) {
	store := &chunkFailingStore{MemoryStore: newMemoryStore(t)}
	ix := newTestIndexer(t, store, nil, nil)

	opts := productOpts()
	opts.MaxChunkSize = 500
	res, err := ix.IndexDocument(context.Background(), longText(20), "Manual", opts)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Greater(t, res.TotalChunks, 1)
	assert.Len(t, res.Errors, res.TotalChunks-1)
	assert.Equal(t, []string{res.DocumentID}, res.ChunkIDs)
}

func TestIndexDocument_Clustering(t *testing.T) {
	t.Run("records the assigned cluster", func(t *testing.T) {
		assigner := &stubAssigner{}
		ix := newTestIndexer(t, newMemoryStore(t), nil, assigner)

		opts := productOpts()
		opts.EnableClustering = true
		res, err := ix.IndexDocument(context.Background(), "Clustered.", "", opts)
		require.NoError(t, err)
		assert.Equal(t, "cluster-1", res.ClusterID)
		assert.Equal(t, []string{res.DocumentID}, assigner.ids)
	})

	t.Run("swallows assignment errors", func(t *testing.T) {
		assigner := &stubAssigner{err: errors.New("cluster store down")}
		ix := newTestIndexer(t, newMemoryStore(t), nil, assigner)
		tl := logging.NewRecorder()
		ix.logger = tl.Logger

		opts := productOpts()
		opts.EnableClustering = true
		res, err := ix.IndexDocument(context.Background(), "Clustered.", "", opts)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Empty(t, res.ClusterID)
		tl.AssertLogged(t, zapcore.WarnLevel, "cluster assignment failed")
	})

	t.Run("skipped when disabled", func(t *testing.T) {
		assigner := &stubAssigner{}
		ix := newTestIndexer(t, newMemoryStore(t), nil, assigner)
		_, err := ix.IndexDocument(context.Background(), "Plain.", "", productOpts())
		require.NoError(t, err)
		assert.Empty(t, assigner.ids)
	})
}

func TestIndexDocuments_SettlesEveryItem(t *testing.T) {
	store := newMemoryStore(t)
	provider := &failingProvider{StaticProvider: embeddings.NewStaticProvider(8), trigger: "Title: bad"}
	ix := newTestIndexer(t, store, provider, nil)
	ix.config.BatchSize = 4
	ix.config.BatchDelay = 10 * time.Millisecond

	var items []BatchItem
	for i := 0; i < 10; i++ {
		title := fmt.Sprintf("item %d", i)
		if i == 3 || i == 7 {
			title = "bad"
		}
		items = append(items, BatchItem{Content: fmt.Sprintf("Document %d body.", i), Title: title, Options: productOpts()})
	}
	items = append(items, BatchItem{Content: "No tenant.", Options: Options{ContentType: vectorstore.ContentTypeFAQ}})

	start := time.Now()
	res := ix.IndexDocuments(context.Background(), items)

	assert.Equal(t, 8, res.Processed)
	assert.Equal(t, 3, res.Failed)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, 8, res.TotalChunks)
	assert.InDelta(t, 1.0, res.AverageChunks, 1e-9)
	assert.Positive(t, res.TotalTokens)
	assert.Len(t, res.Results, 11)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "two delays between three sub-batches")

	n, err := store.CountDocuments(context.Background(), vectorstore.DocumentFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestDeleteDocumentAndChunks(t *testing.T) {
	store := newMemoryStore(t)
	ix := newTestIndexer(t, store, nil, nil)
	ctx := context.Background()

	opts := productOpts()
	opts.MaxChunkSize = 400
	opts.OverlapSize = 0
	content := longText(16)
	res, err := ix.IndexDocument(ctx, content, "Manual", opts)
	require.NoError(t, err)
	require.Equal(t, 4, res.TotalChunks, "three chunk rows besides the parent")

	for _, id := range res.ChunkIDs {
		require.NoError(t, store.SetMembership(ctx, &vectorstore.Membership{DocumentID: id, ClusterID: "c1"}))
	}

	deleted, err := ix.DeleteDocumentAndChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, res.DocumentID, deleted.ID)

	n, err := store.CountDocuments(ctx, vectorstore.DocumentFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.GetSideRecord(ctx, res.DocumentID)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
	for _, id := range res.ChunkIDs {
		_, err = store.GetMembership(ctx, id)
		assert.ErrorIs(t, err, vectorstore.ErrNotFound)
	}

	_, err = ix.ReindexDocument(ctx, res.DocumentID, content, "Manual", Options{})
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestReindexDocument_KeepsIdentity(t *testing.T) {
	store := newMemoryStore(t)
	ix := newTestIndexer(t, store, nil, nil)
	ctx := context.Background()

	orig, err := ix.IndexDocument(ctx, "Old description.", "Lamp", productOpts())
	require.NoError(t, err)
	before, err := store.GetDocument(ctx, orig.DocumentID)
	require.NoError(t, err)

	res, err := ix.ReindexDocument(ctx, orig.DocumentID, "New description with more detail.", "", Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, orig.DocumentID, res.DocumentID)

	after, err := store.GetDocument(ctx, orig.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "New description with more detail.", after.Content)
	assert.Equal(t, "Lamp", after.Title)
	assert.Equal(t, "acme", after.TenantID)
	assert.Equal(t, vectorstore.ContentTypeProduct, after.ContentType)
	assert.Equal(t, "HP-100", after.Metadata.String("sku"))
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.NotEqual(t, before.Embedding, after.Embedding)
}

func TestReindexDocument_EmbeddingFailureKeepsStoredVersion(t *testing.T) {
	store := newMemoryStore(t)
	provider := &failingProvider{StaticProvider: embeddings.NewStaticProvider(32), trigger: "outage"}
	ix := newTestIndexer(t, store, provider, nil)
	ctx := context.Background()

	opts := productOpts()
	opts.MaxChunkSize = 400
	opts.OverlapSize = 0
	orig, err := ix.IndexDocument(ctx, longText(16), "Manual", opts)
	require.NoError(t, err)
	require.Equal(t, 4, orig.TotalChunks)
	require.NoError(t, store.SetMembership(ctx, &vectorstore.Membership{DocumentID: orig.DocumentID, ClusterID: "c1"}))
	before, err := store.GetDocument(ctx, orig.DocumentID)
	require.NoError(t, err)

	res, err := ix.ReindexDocument(ctx, orig.DocumentID, "Provider outage during the rewrite.", "", Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "embedding")

	after, err := store.GetDocument(ctx, orig.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, before.Content, after.Content)
	assert.Equal(t, before.Embedding, after.Embedding)

	chunks, err := store.CountDocuments(ctx, vectorstore.DocumentFilter{ParentID: orig.DocumentID})
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)

	_, err = store.GetSideRecord(ctx, orig.DocumentID)
	assert.NoError(t, err)
	mem, err := store.GetMembership(ctx, orig.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "c1", mem.ClusterID)
}

func TestReindexDocument_ReplacesChunksAndReassigns(t *testing.T) {
	store := newMemoryStore(t)
	assigner := &stubAssigner{}
	ix := newTestIndexer(t, store, nil, assigner)
	ctx := context.Background()

	opts := productOpts()
	opts.MaxChunkSize = 400
	opts.OverlapSize = 0
	orig, err := ix.IndexDocument(ctx, longText(16), "Manual", opts)
	require.NoError(t, err)
	require.Equal(t, 4, orig.TotalChunks)
	require.NoError(t, store.SetMembership(ctx, &vectorstore.Membership{DocumentID: orig.DocumentID, ClusterID: "cluster-1"}))

	res, err := ix.ReindexDocument(ctx, orig.DocumentID, "Short replacement text.", "", Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.TotalChunks)
	assert.Equal(t, "cluster-1", res.ClusterID)
	assert.Equal(t, []string{orig.DocumentID}, assigner.reassigned)
	assert.Empty(t, assigner.ids)

	chunks, err := store.CountDocuments(ctx, vectorstore.DocumentFilter{ParentID: orig.DocumentID})
	require.NoError(t, err)
	assert.Zero(t, chunks, "stale chunks are removed")

	_, err = store.GetMembership(ctx, orig.DocumentID)
	assert.NoError(t, err, "the parent keeps its membership through the swap")
}

func TestReindexDocument_ClusteringOptIn(t *testing.T) {
	store := newMemoryStore(t)
	assigner := &stubAssigner{}
	ix := newTestIndexer(t, store, nil, assigner)
	ctx := context.Background()

	orig, err := ix.IndexDocument(ctx, "Desk lamp with a warm light.", "Lamp", productOpts())
	require.NoError(t, err)

	res, err := ix.ReindexDocument(ctx, orig.DocumentID, "Desk lamp with a dimmer.", "", Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.ClusterID)
	assert.Empty(t, assigner.ids)
	assert.Empty(t, assigner.reassigned)

	res, err = ix.ReindexDocument(ctx, orig.DocumentID, "Desk lamp with a dimmer and a clamp.", "", Options{EnableClustering: true})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "cluster-1", res.ClusterID)
	assert.Equal(t, []string{orig.DocumentID}, assigner.ids)
}
