package reranker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

func TestHybridRerankerBoosts(t *testing.T) {
	medium := strings.Repeat("x", 150)
	tests := []struct {
		name string
		doc  Document
		want float64
	}{
		{"short content", Document{Content: "short", Score: 1}, 1},
		{"preferred length", Document{Content: medium, Score: 1}, 1.1},
		{"too long", Document{Content: strings.Repeat("x", 2001), Score: 1}, 1},
		{"title match", Document{Title: "Return Policy FAQ", Content: "short", Score: 1}, 1.2},
		{"faq weight", Document{Content: "short", ContentType: vectorstore.ContentTypeFAQ, Score: 1}, 1.2},
		{"unlisted type", Document{Content: "short", ContentType: vectorstore.ContentTypeOrder, Score: 1}, 1},
		{"all boosts", Document{Title: "return policy", Content: medium, ContentType: vectorstore.ContentTypeKnowledgeBase, Score: 0.5}, 0.5 * 1.1 * 1.2 * 1.15},
	}

	r := NewHybridReranker(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rerank(context.Background(), "Return policy", []Document{tt.doc}, 0)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].RerankerScore, 1e-9)
		})
	}
}

func TestHybridRerankerOrdersAndTruncates(t *testing.T) {
	r := NewHybridReranker(nil)
	docs := []Document{
		{ID: "convo", Content: "short", ContentType: vectorstore.ContentTypeConversation, Score: 0.8},
		{ID: "faq", Content: "short", ContentType: vectorstore.ContentTypeFAQ, Score: 0.7},
		{ID: "plain", Content: "short", Score: 0.75},
	}
	got, err := r.Rerank(context.Background(), "q", docs, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "faq", got[0].ID)
	assert.Equal(t, 1, got[0].OriginalRank)
	assert.Equal(t, "plain", got[1].ID)
}

func TestSemanticRerankerPassthrough(t *testing.T) {
	for _, r := range []Reranker{NewSemanticReranker(), NewCrossEncoderReranker()} {
		got, err := r.Rerank(context.Background(), "q", []Document{
			{ID: "a", Score: 0.2},
			{ID: "b", Score: 0.9},
		}, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID)
		assert.Equal(t, 0.9, got[0].RerankerScore)
		assert.NoError(t, r.Close())
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		strategy Strategy
		want     Strategy
		wantErr  bool
	}{
		{"", StrategySemantic, false},
		{StrategySemantic, StrategySemantic, false},
		{StrategyCrossEncoder, StrategyCrossEncoder, false},
		{StrategyHybrid, StrategyHybrid, false},
		{StrategyTermOverlap, StrategyTermOverlap, false},
		{"bm25", "", true},
	}
	for _, tt := range tests {
		r, err := New(tt.strategy)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownStrategy)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.Name())
	}
}
