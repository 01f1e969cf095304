package embeddings

import (
	"context"
	"errors"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/embedlife/internal/vecmath"
)

// DefaultStaticDimension is the vector size of NewStaticProvider when the
// caller does not choose one.
const DefaultStaticDimension = 256

// StaticModel is the model name reported by StaticProvider.
const StaticModel = "static-hash"

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var errProviderClosed = errors.New("provider is closed")

var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "with": true,
}

// StaticProvider generates deterministic hash-based vectors. Texts sharing
// words or character trigrams land close together, which is enough for
// tests and offline development but carries no real semantics.
type StaticProvider struct {
	dimension int
	mu        sync.RWMutex
	closed    bool
}

// NewStaticProvider creates a static provider producing dim-sized vectors.
func NewStaticProvider(dim int) *StaticProvider {
	if dim <= 0 {
		dim = DefaultStaticDimension
	}
	return &StaticProvider{dimension: dim}
}

// Embed embeds a single text.
func (p *StaticProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	batch, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return &Embedding{Vector: batch.Vectors[0], TokenCount: batch.TotalTokens}, nil
}

// EmbedBatch embeds each text independently. TotalTokens counts the word
// tokens seen.
func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedding, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errProviderClosed
	}
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	out := &BatchEmbedding{Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, tokens := p.vector(text)
		out.Vectors[i] = vec
		out.TotalTokens += tokens
	}
	return out, nil
}

func (p *StaticProvider) vector(text string) ([]float32, int) {
	vec := make([]float32, p.dimension)

	words := tokenRegex.FindAllString(strings.ToLower(text), -1)
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		vec[hashToIndex(w, p.dimension)] += tokenWeight
	}

	normalized := strings.Join(words, " ")
	runes := []rune(normalized)
	for i := 0; i+ngramSize <= len(runes); i++ {
		vec[hashToIndex(string(runes[i:i+ngramSize]), p.dimension)] += ngramWeight
	}

	return vecmath.Normalize(vec), len(words)
}

func hashToIndex(s string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}

// Dimension returns the vector size.
func (p *StaticProvider) Dimension() int { return p.dimension }

// Model returns StaticModel.
func (p *StaticProvider) Model() string { return StaticModel }

// Close marks the provider closed.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
