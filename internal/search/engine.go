package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/reranker"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/embedlife/internal/search"

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// Store is the storage surface the engine reads from.
type Store interface {
	vectorstore.Searcher
	GetDocument(ctx context.Context, id string) (*vectorstore.Document, error)
}

// Config configures the engine.
type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

// DefaultConfig returns a 5 minute, 1000 entry response cache.
func DefaultConfig() *Config {
	return &Config{CacheTTL: DefaultCacheTTL, CacheSize: DefaultCacheSize}
}

// Engine executes searches.
type Engine struct {
	store    Store
	embedder embeddings.Provider
	cache    *responseCache
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a search engine.
func New(cfg *Config, store Store, embedder embeddings.Provider, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", vectorstore.ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		cache:    newResponseCache(cfg.CacheSize, cfg.CacheTTL),
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}, nil
}

// CacheStats returns response cache counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.stats()
}

// Search embeds query once and returns the best matching documents.
//
// Retrieval and embedding failures are returned as errors. Boosting and
// reranking never fail the search; a failed rerank keeps the unreranked
// order.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "search.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	tenantID, err := vectorstore.ResolveTenantID(ctx, opts.TenantID)
	if err != nil {
		return nil, err
	}
	opts.TenantID = tenantID
	opts = applyDefaults(opts)

	var key string
	if !opts.SkipCache {
		key, err = cacheKey(query, opts)
		if err != nil {
			e.logger.Warn("computing cache key failed", zap.Error(err))
		} else if resp, ok := e.cache.get(key); ok {
			resp.Analytics.CacheHit = true
			resp.Analytics.EmbeddingTime = 0
			resp.Analytics.SearchTime = 0
			resp.Analytics.TotalTime = e.now().Sub(start)
			SearchesTotal.WithLabelValues("cached").Inc()
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return resp, nil
		}
	}

	embedStart := e.now()
	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	embeddingTime := e.now().Sub(embedStart)

	searchStart := e.now()
	strategy := selectStrategy(opts)
	hits, strategy, err := e.retrieve(ctx, strategy, query, emb.Vector, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, fmt.Errorf("%s search: %w", strategy, err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			Document:      h.Document,
			Similarity:    h.Similarity,
			TextScore:     h.TextScore,
			CombinedScore: h.CombinedScore,
			ClusterID:     h.ClusterID,
		}
		if r.CombinedScore == 0 {
			r.CombinedScore = r.Similarity
		}
		if matches(r.Document, opts) {
			results = append(results, r)
		}
	}
	candidates := len(results)

	if opts.AggregateChunks {
		results = AggregateChunks(results, opts.ChunksPerParent)
	}
	applyBoosts(results, opts.Boost, e.now())
	sortResults(results)

	reranked := false
	if opts.Rerank != nil {
		results, reranked = e.rerank(ctx, query, results, opts)
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	searchTime := e.now().Sub(searchStart)

	resp := &Response{
		Results: results,
		Analytics: Analytics{
			Strategy:        strategy,
			TotalCandidates: candidates,
			Returned:        len(results),
			Reranked:        reranked,
			EmbeddingTime:   embeddingTime,
			SearchTime:      searchTime,
			TotalTime:       e.now().Sub(start),
		},
	}
	if key != "" {
		e.cache.put(key, resp)
	}

	SearchesTotal.WithLabelValues(string(strategy)).Inc()
	SearchDuration.WithLabelValues(string(strategy)).Observe(resp.Analytics.TotalTime.Seconds())
	span.SetAttributes(
		attribute.String("strategy", string(strategy)),
		attribute.Int("results_count", len(results)),
	)
	e.logger.Debug("search completed",
		zap.String("tenant_id", opts.TenantID),
		zap.String("strategy", string(strategy)),
		zap.Int("candidates", candidates),
		zap.Int("returned", len(results)),
		zap.Duration("total_time", resp.Analytics.TotalTime),
	)
	return resp, nil
}

// retrieve runs the strategy, falling back to vector search when cluster
// search finds nothing (typically before any clustering has happened).
func (e *Engine) retrieve(ctx context.Context, strategy Strategy, query string, embedding []float32, opts Options) ([]vectorstore.ScoredDocument, Strategy, error) {
	fetch := opts.Limit * 2
	vq := vectorstore.VectorQuery{
		Embedding:     embedding,
		TenantID:      opts.TenantID,
		ContentTypes:  opts.ContentTypes,
		Threshold:     *opts.Threshold,
		Count:         fetch,
		Filters:       opts.Filters,
		ExcludeChunks: !opts.IncludeChunks && !opts.AggregateChunks,
	}

	switch strategy {
	case StrategyHybrid:
		hits, err := e.store.HybridSearch(ctx, vectorstore.HybridQuery{
			VectorQuery:  vq,
			Text:         query,
			VectorWeight: opts.VectorWeight,
			TextWeight:   opts.TextWeight,
		})
		return hits, strategy, err

	case StrategyCluster:
		perCluster := opts.DocsPerCluster
		if perCluster <= 0 {
			perCluster = fetch
		}
		hits, err := e.store.SearchClusters(ctx, vectorstore.ClusterQuery{
			Embedding:      embedding,
			TenantID:       opts.TenantID,
			ContentTypes:   opts.ContentTypes,
			ClusterCount:   opts.ClusterCount,
			DocsPerCluster: perCluster,
			Threshold:      *opts.Threshold,
		})
		if err != nil || len(hits) > 0 {
			return hits, strategy, err
		}
		e.logger.Debug("cluster search returned nothing, using vector search",
			zap.String("tenant_id", opts.TenantID))
		fallthrough

	default:
		hits, err := e.store.SearchVectors(ctx, vq)
		return hits, StrategyVector, err
	}
}

// rerank reorders the best TopK results. On failure the input is returned
// unchanged.
func (e *Engine) rerank(ctx context.Context, query string, results []Result, opts Options) ([]Result, bool) {
	if len(results) == 0 {
		return results, false
	}
	r, err := reranker.New(opts.Rerank.Strategy)
	if err != nil {
		e.logger.Warn("reranker unavailable, keeping retrieval order", zap.Error(err))
		return results, false
	}
	defer r.Close()

	topK := opts.Rerank.TopK
	if topK <= 0 {
		topK = opts.Limit
	}
	head := results[:min(topK, len(results))]

	docs := make([]reranker.Document, len(head))
	for i, res := range head {
		docs[i] = reranker.Document{
			ID:          res.Document.ID,
			Title:       res.Document.Title,
			Content:     res.Document.Content,
			ContentType: res.Document.ContentType,
			Score:       res.score(),
		}
	}

	scored, err := r.Rerank(ctx, query, docs, topK)
	if err != nil {
		e.logger.Warn("reranking failed, keeping retrieval order",
			zap.String("strategy", string(r.Name())), zap.Error(err))
		return results, false
	}

	out := make([]Result, 0, len(scored))
	for _, s := range scored {
		res := head[s.OriginalRank]
		res.RerankScore = s.RerankerScore
		res.CombinedScore = s.RerankerScore
		out = append(out, res)
	}
	sortResults(out)
	return out, true
}

func applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Threshold == nil {
		t := DefaultThreshold
		opts.Threshold = &t
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}
	if opts.VectorWeight == 0 && opts.TextWeight == 0 {
		opts.VectorWeight = DefaultVectorWeight
		opts.TextWeight = DefaultTextWeight
	}
	if opts.AggregateChunks && opts.ChunksPerParent <= 0 {
		opts.ChunksPerParent = DefaultChunksPerParent
	}
	return opts
}

// selectStrategy picks cluster search when requested, when Limit exceeds
// clusterLimit or when cluster parameters are given, whatever strategy was
// asked for; then hybrid when requested; vector otherwise.
func selectStrategy(opts Options) Strategy {
	if opts.Strategy == StrategyCluster || opts.Limit > clusterLimit || opts.ClusterCount > 0 || opts.DocsPerCluster > 0 {
		return StrategyCluster
	}
	if opts.Strategy == StrategyHybrid {
		return StrategyHybrid
	}
	return StrategyVector
}

// matches applies the filters the cluster strategy cannot push down to the
// store. It is a no-op for results the store already filtered.
func matches(doc *vectorstore.Document, opts Options) bool {
	if doc == nil {
		return false
	}
	q := vectorstore.VectorQuery{
		TenantID:      opts.TenantID,
		ContentTypes:  opts.ContentTypes,
		Filters:       opts.Filters,
		ExcludeChunks: !opts.IncludeChunks && !opts.AggregateChunks,
	}
	return q.Matches(doc)
}
