// Package embeddings turns text into vectors for the indexer and the search
// engine.
//
// Providers:
//   - tei: HuggingFace text-embeddings-inference over HTTP (/embed)
//   - openai: any OpenAI-compatible /embeddings endpoint via langchaingo
//   - fastembed: local ONNX models (requires CGO)
//   - static: deterministic hash vectors, no network or model download
//
// Wrappers add behavior around any Provider: NewRateLimited bounds request
// rate with golang.org/x/time/rate and NewCached keeps an LRU of vectors
// keyed by text and model.
//
// All providers preserve input order in EmbedBatch and report token usage
// when the backend does; callers estimate it otherwise.
package embeddings
