package search

import (
	"time"

	"github.com/fyrsmithlabs/embedlife/internal/reranker"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// Strategy selects how candidates are retrieved.
type Strategy string

const (
	StrategyAuto    Strategy = "auto"
	StrategyVector  Strategy = "vector"
	StrategyHybrid  Strategy = "hybrid"
	StrategyCluster Strategy = "cluster"
)

// Defaults applied to zero-valued options.
const (
	DefaultLimit           = 10
	DefaultThreshold       = 0.7
	DefaultVectorWeight    = 0.7
	DefaultTextWeight      = 0.3
	DefaultChunksPerParent = 3

	// clusterLimit is the result count above which auto selects
	// cluster search.
	clusterLimit = 20
)

// BoostOptions enables multiplicative score modifiers.
type BoostOptions struct {
	// Recency multiplies documents created within the last 7 days by 1.1.
	Recency bool `json:"recency,omitempty"`
	// Rating multiplies documents rated 4 or more by 1.05 plus 0.05 per
	// point above 4.
	Rating bool `json:"rating,omitempty"`
	// CategoryPreferences multiplies documents whose category metadata
	// matches a key by its value.
	CategoryPreferences map[string]float64 `json:"category_preferences,omitempty"`
}

// RerankOptions requests reranking of the best TopK candidates.
type RerankOptions struct {
	Strategy reranker.Strategy `json:"strategy"`
	// TopK defaults to the search limit.
	TopK int `json:"top_k,omitempty"`
}

// Options configures a search.
type Options struct {
	TenantID     string                    `json:"tenant_id"`
	ContentTypes []vectorstore.ContentType `json:"content_types,omitempty"`
	Limit        int                       `json:"limit,omitempty"`
	// Threshold is the minimum score. nil uses DefaultThreshold.
	Threshold *float64          `json:"threshold,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	// Strategy defaults to auto. Cluster search is used whatever the
	// requested strategy when Limit exceeds 20 or cluster parameters are set.
	Strategy Strategy `json:"strategy,omitempty"`

	VectorWeight float64 `json:"vector_weight,omitempty"`
	TextWeight   float64 `json:"text_weight,omitempty"`

	ClusterCount   int `json:"cluster_count,omitempty"`
	DocsPerCluster int `json:"docs_per_cluster,omitempty"`

	IncludeChunks   bool `json:"include_chunks,omitempty"`
	AggregateChunks bool `json:"aggregate_chunks,omitempty"`
	ChunksPerParent int  `json:"chunks_per_parent,omitempty"`

	Boost  *BoostOptions  `json:"boost,omitempty"`
	Rerank *RerankOptions `json:"rerank,omitempty"`

	// SkipCache bypasses the response cache for both lookup and store.
	SkipCache bool `json:"-"`
}

// Result is one ranked document.
type Result struct {
	Document   *vectorstore.Document `json:"document"`
	Similarity float64               `json:"similarity"`
	TextScore  float64               `json:"text_score,omitempty"`
	// CombinedScore is the final ranking score after boosts and reranking.
	CombinedScore float64 `json:"combined_score"`
	RerankScore   float64 `json:"rerank_score,omitempty"`
	ClusterID     string  `json:"cluster_id,omitempty"`
	// MatchedChunks is set by chunk aggregation.
	MatchedChunks int `json:"matched_chunks,omitempty"`
}

// score returns CombinedScore, or Similarity when unset.
func (r Result) score() float64 {
	if r.CombinedScore != 0 {
		return r.CombinedScore
	}
	return r.Similarity
}

// Analytics describes how a response was produced.
type Analytics struct {
	Strategy        Strategy      `json:"strategy"`
	TotalCandidates int           `json:"total_candidates"`
	Returned        int           `json:"returned"`
	CacheHit        bool          `json:"cache_hit"`
	Reranked        bool          `json:"reranked"`
	EmbeddingTime   time.Duration `json:"embedding_time"`
	SearchTime      time.Duration `json:"search_time"`
	TotalTime       time.Duration `json:"total_time"`
}

// Response is the outcome of a search.
type Response struct {
	Results   []Result  `json:"results"`
	Analytics Analytics `json:"analytics"`
}

func (r *Response) clone() *Response {
	out := *r
	out.Results = append([]Result(nil), r.Results...)
	return &out
}

// MultiModalOptions constrains results by similarity to a reference
// document.
type MultiModalOptions struct {
	ReferenceDocumentID    string  `json:"reference_document_id"`
	MinReferenceSimilarity float64 `json:"min_reference_similarity"`
	ExcludeReference       bool    `json:"exclude_reference"`
}
