package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/embedlife/internal/indexer"

// Indexer chunks, embeds and stores documents.
type Indexer struct {
	config   *Config
	store    vectorstore.Store
	embedder embeddings.Provider
	assigner ClusterAssigner
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates an indexer. assigner may be nil, which disables clustering.
func New(cfg *Config, store vectorstore.Store, embedder embeddings.Provider, assigner ClusterAssigner, logger *zap.Logger) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", vectorstore.ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = DefaultOverlapSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Indexer{
		config:   cfg,
		store:    store,
		embedder: embedder,
		assigner: assigner,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}, nil
}

// IndexDocument chunks and embeds content, then stores the parent and its
// chunks.
//
// The returned error is non-nil only for invalid options. Embedding and
// parent insert failures come back as Success=false with the cause in
// Errors; chunk insert and side record failures are listed in Errors on an
// otherwise successful result.
func (ix *Indexer) IndexDocument(ctx context.Context, content, title string, opts Options) (*Result, error) {
	ctx, span := ix.tracer.Start(ctx, "indexer.IndexDocument")
	defer span.End()

	if err := validate(content, opts); err != nil {
		return nil, err
	}
	if opts.DocumentID == "" {
		opts.DocumentID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("document_id", opts.DocumentID),
		attribute.String("tenant_id", opts.TenantID),
		attribute.String("content_type", string(opts.ContentType)),
	)

	res := &Result{DocumentID: opts.DocumentID}
	defer countOutcome(res)

	p := ix.embed(ctx, content, title, opts, res)
	if p == nil {
		return res, nil
	}
	if !ix.persist(ctx, p, content, title, opts, res) {
		return res, nil
	}

	if opts.EnableClustering && ix.assigner != nil {
		a, err := ix.assigner.AssignDocument(ctx, opts.DocumentID)
		if err != nil {
			ix.logger.Warn("cluster assignment failed", zap.String("document_id", opts.DocumentID), zap.Error(err))
		} else {
			res.ClusterID = a.ClusterID
		}
	}

	ix.logger.Debug("document indexed",
		zap.String("document_id", opts.DocumentID),
		zap.String("tenant_id", opts.TenantID),
		zap.Int("chunks", res.TotalChunks),
		zap.Int("tokens", res.TokenCount))

	return res, nil
}

// prepared is a chunked and embedded document ready to be stored.
type prepared struct {
	summary string
	chunks  []Chunk
	vectors [][]float32
}

func validate(content string, opts Options) error {
	if err := vectorstore.ValidateTenantID(opts.TenantID); err != nil {
		return err
	}
	if _, err := vectorstore.ParseContentType(string(opts.ContentType)); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", vectorstore.ErrEmptyDocuments)
	}
	return nil
}

func countOutcome(res *Result) {
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	DocumentsIndexed.WithLabelValues(outcome).Inc()
}

// embed chunks content and embeds every chunk. It returns nil and records
// the cause in res when embedding fails; nothing is written to the store.
func (ix *Indexer) embed(ctx context.Context, content, title string, opts Options, res *Result) *prepared {
	span := trace.SpanFromContext(ctx)

	maxSize := opts.MaxChunkSize
	if maxSize <= 0 {
		maxSize = ix.config.MaxChunkSize
	}
	overlap := opts.OverlapSize
	if overlap <= 0 {
		overlap = ix.config.OverlapSize
	}

	p := &prepared{summary: Summarize(content)}
	p.chunks = ChunkText(content, maxSize, overlap)
	res.TotalChunks = len(p.chunks)
	ChunksPerDocument.Observe(float64(len(p.chunks)))

	texts := make([]string, len(p.chunks))
	for i, c := range p.chunks {
		texts[i] = contextualize(title, p.summary, c.Text)
	}

	batch, err := ix.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(batch.Vectors) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d chunks", embeddings.ErrEmbeddingFailed, len(batch.Vectors), len(texts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		ix.logger.Error("embedding document failed", zap.String("document_id", opts.DocumentID), zap.Error(err))
		res.Errors = append(res.Errors, fmt.Sprintf("embedding: %v", err))
		return nil
	}
	p.vectors = batch.Vectors

	res.TokenCount = batch.TotalTokens
	if res.TokenCount == 0 {
		for _, t := range texts {
			res.TokenCount += EstimateTokens(t)
		}
	}
	TokensTotal.Add(float64(res.TokenCount))
	span.SetAttributes(attribute.Int("chunks", len(p.chunks)), attribute.Int("tokens", res.TokenCount))
	return p
}

// persist writes the parent, its chunks and its side record. It reports
// whether the parent was stored.
func (ix *Indexer) persist(ctx context.Context, p *prepared, content, title string, opts Options, res *Result) bool {
	id := opts.DocumentID
	now := ix.now()
	created := opts.createdAt
	if created.IsZero() {
		created = now
	}

	parent := &vectorstore.Document{
		ID:          id,
		Content:     content,
		Title:       title,
		Summary:     p.summary,
		ContentType: opts.ContentType,
		Embedding:   p.vectors[0],
		Metadata:    opts.Metadata.Clone(),
		TenantID:    opts.TenantID,
		SourceID:    opts.SourceID,
		SourceURL:   opts.SourceURL,
		Language:    opts.Language,
		Status:      vectorstore.StatusActive,
		CreatedAt:   created,
		UpdatedAt:   now,
		ChunkIndex:  0,
		ChunkCount:  len(p.chunks),
	}
	if err := ix.store.PutDocument(ctx, parent); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parent insert failed")
		ix.logger.Error("storing document failed", zap.String("document_id", id), zap.Error(err))
		res.Errors = append(res.Errors, fmt.Sprintf("storing document: %v", err))
		return false
	}
	res.Success = true
	res.ChunkIDs = append(res.ChunkIDs, id)

	for i := 1; i < len(p.chunks); i++ {
		chunk := &vectorstore.Document{
			ID:          ChunkID(id, i),
			Content:     p.chunks[i].Text,
			Title:       title,
			ContentType: opts.ContentType,
			Embedding:   p.vectors[i],
			Metadata:    opts.Metadata.Clone(),
			TenantID:    opts.TenantID,
			SourceID:    opts.SourceID,
			SourceURL:   opts.SourceURL,
			Language:    opts.Language,
			Status:      vectorstore.StatusActive,
			CreatedAt:   created,
			UpdatedAt:   now,
			ParentID:    id,
			ChunkIndex:  i,
			ChunkCount:  len(p.chunks),
		}
		if err := ix.store.PutDocument(ctx, chunk); err != nil {
			ix.logger.Warn("storing chunk failed",
				zap.String("document_id", id), zap.Int("chunk_index", i), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("chunk %d: %v", i, err))
			continue
		}
		res.ChunkIDs = append(res.ChunkIDs, chunk.ID)
	}

	if rec := sideRecord(id, opts.ContentType, opts.Metadata); rec != nil {
		if err := ix.store.PutSideRecord(ctx, rec); err != nil {
			ix.logger.Warn("storing side record failed", zap.String("document_id", id), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("side record: %v", err))
		}
	}
	return true
}

// IndexDocuments indexes items in sub-batches of Config.BatchSize separated
// by Config.BatchDelay. Items within a sub-batch run concurrently and fail
// independently.
func (ix *Indexer) IndexDocuments(ctx context.Context, items []BatchItem) *BatchResult {
	ctx, span := ix.tracer.Start(ctx, "indexer.IndexDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	out := &BatchResult{Results: make([]*Result, len(items))}
	errs := make([]error, len(items))

	for start := 0; start < len(items); start += ix.config.BatchSize {
		if start > 0 && ix.config.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(ix.config.BatchDelay):
			}
		}

		end := min(start+ix.config.BatchSize, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				item := items[i]
				out.Results[i], errs[i] = ix.IndexDocument(ctx, item.Content, item.Title, item.Options)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, r := range out.Results {
		switch {
		case errs[i] != nil:
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("item %d: %v", i, errs[i]))
		case !r.Success:
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("item %d: %s", i, strings.Join(r.Errors, "; ")))
		default:
			out.Processed++
			out.TotalChunks += r.TotalChunks
			out.TotalTokens += r.TokenCount
		}
	}
	if out.Processed > 0 {
		out.AverageChunks = float64(out.TotalChunks) / float64(out.Processed)
	}

	ix.logger.Info("batch indexed",
		zap.Int("processed", out.Processed),
		zap.Int("failed", out.Failed),
		zap.Int("chunks", out.TotalChunks))

	return out
}

// ReindexDocument replaces a parent document and its chunks under the same
// id. Tenant, content type, metadata and source fields carry over from the
// stored document unless opts sets them. Returns ErrNotFound when the id is
// unknown.
//
// The new version is embedded before anything is removed, so an embedding
// failure leaves the stored version untouched. A document that was in a
// cluster is reassigned from its new embedding; one that was not is
// assigned only when opts.EnableClustering is set.
func (ix *Indexer) ReindexDocument(ctx context.Context, id, content, title string, opts Options) (*Result, error) {
	ctx, span := ix.tracer.Start(ctx, "indexer.ReindexDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	existing, err := ix.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.IsChunk() {
		return nil, fmt.Errorf("document %s is a chunk of %s: %w", id, existing.ParentID, vectorstore.ErrNotFound)
	}

	if opts.TenantID == "" {
		opts.TenantID = existing.TenantID
	}
	if opts.ContentType == "" {
		opts.ContentType = existing.ContentType
	}
	if opts.Metadata == nil {
		opts.Metadata = existing.Metadata
	}
	if opts.SourceID == "" {
		opts.SourceID = existing.SourceID
	}
	if opts.SourceURL == "" {
		opts.SourceURL = existing.SourceURL
	}
	if opts.Language == "" {
		opts.Language = existing.Language
	}
	if title == "" {
		title = existing.Title
	}
	opts.DocumentID = id
	opts.createdAt = existing.CreatedAt

	if err := validate(content, opts); err != nil {
		return nil, err
	}

	res := &Result{DocumentID: id}
	defer countOutcome(res)

	p := ix.embed(ctx, content, title, opts, res)
	if p == nil {
		return res, nil
	}

	membership, err := ix.store.GetMembership(ctx, id)
	if err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
		res.Errors = append(res.Errors, fmt.Sprintf("reading membership: %v", err))
		return res, nil
	}

	// The parent is overwritten in place so its membership survives the swap.
	if err := ix.deleteChunks(ctx, id); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	if err := ix.store.DeleteSideRecord(ctx, id); err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
		res.Errors = append(res.Errors, fmt.Sprintf("deleting side record: %v", err))
		return res, nil
	}
	if !ix.persist(ctx, p, content, title, opts, res) {
		return res, nil
	}

	if ix.assigner != nil {
		sameGroup := membership != nil && existing.TenantID == opts.TenantID && existing.ContentType == opts.ContentType
		switch {
		case sameGroup:
			r, err := ix.assigner.ReassignDocument(ctx, id)
			if err != nil {
				ix.logger.Warn("cluster reassignment failed", zap.String("document_id", id), zap.Error(err))
			} else {
				res.ClusterID = r.ToClusterID
			}
		case membership != nil || opts.EnableClustering:
			// A moved tenant or type joins a cluster of its new group;
			// assignment recomputes the cluster it leaves.
			a, err := ix.assigner.AssignDocument(ctx, id)
			if err != nil {
				ix.logger.Warn("cluster assignment failed", zap.String("document_id", id), zap.Error(err))
			} else {
				res.ClusterID = a.ClusterID
			}
		}
	}

	ix.logger.Debug("document reindexed",
		zap.String("document_id", id),
		zap.Int("chunks", res.TotalChunks),
		zap.String("cluster_id", res.ClusterID))
	return res, nil
}

// DeleteDocumentAndChunks removes a parent document with its chunks, side
// record and cluster memberships, returning the deleted parent. Returns
// ErrNotFound when the id is unknown.
func (ix *Indexer) DeleteDocumentAndChunks(ctx context.Context, id string) (*vectorstore.Document, error) {
	ctx, span := ix.tracer.Start(ctx, "indexer.DeleteDocumentAndChunks")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	doc, err := ix.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.IsChunk() {
		return nil, fmt.Errorf("document %s is a chunk of %s: %w", id, doc.ParentID, vectorstore.ErrNotFound)
	}

	if err := ix.deleteChunks(ctx, id); err != nil {
		return nil, err
	}
	if err := ix.store.DeleteMembership(ctx, id); err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
		return nil, fmt.Errorf("deleting membership of %s: %w", id, err)
	}
	if err := ix.store.DeleteSideRecord(ctx, id); err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
		return nil, fmt.Errorf("deleting side record: %w", err)
	}
	if err := ix.store.DeleteDocuments(ctx, []string{id}); err != nil {
		return nil, fmt.Errorf("deleting documents: %w", err)
	}

	ix.logger.Debug("document deleted", zap.String("document_id", id))
	return doc, nil
}

// deleteChunks removes every chunk of a parent with its memberships.
func (ix *Indexer) deleteChunks(ctx context.Context, parentID string) error {
	chunks, err := ix.store.ListDocuments(ctx, vectorstore.DocumentFilter{ParentID: parentID})
	if err != nil {
		return fmt.Errorf("listing chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if err := ix.store.DeleteMembership(ctx, c.ID); err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
			return fmt.Errorf("deleting membership of %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}
	if err := ix.store.DeleteDocuments(ctx, ids); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// ChunkID returns the record id of chunk i of a parent.
func ChunkID(parentID string, i int) string {
	return fmt.Sprintf("%s-chunk-%d", parentID, i)
}

// contextualize prefixes chunk text with the document title and summary so
// every chunk embeds with its document context.
func contextualize(title, summary, text string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("Title: ")
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if summary != "" {
		b.WriteString("Summary: ")
		b.WriteString(summary)
		b.WriteByte('\n')
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(text)
	return b.String()
}
