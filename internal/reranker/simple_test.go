package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRerankerRerank(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		docs      []Document
		topK      int
		wantCount int
		wantIDs   []string // expected leading ids
	}{
		{
			name:      "empty documents",
			query:     "wireless headphones",
			docs:      []Document{},
			topK:      10,
			wantCount: 0,
		},
		{
			name:  "single document",
			query: "battery life",
			docs: []Document{
				{ID: "doc1", Content: "battery life lasts thirty hours", Score: 0.9},
			},
			topK:      10,
			wantCount: 1,
			wantIDs:   []string{"doc1"},
		},
		{
			name:  "term overlap reorders",
			query: "return policy refund",
			docs: []Document{
				{ID: "doc1", Content: "refund issued within five days of the return", Score: 0.8},
				{ID: "doc2", Content: "shipping to europe takes a week", Score: 0.9},
				{ID: "doc3", Content: "our policy on refund requests", Score: 0.85},
			},
			topK:      10,
			wantCount: 3,
			wantIDs:   []string{"doc3", "doc1", "doc2"},
		},
		{
			name:  "topK limits results",
			query: "noise cancelling",
			docs: []Document{
				{ID: "doc1", Content: "noise cancelling modes", Score: 0.9},
				{ID: "doc2", Content: "noise levels in the office", Score: 0.85},
				{ID: "doc3", Content: "cancelling an order", Score: 0.8},
				{ID: "doc4", Content: "noise reference", Score: 0.75},
			},
			topK:      2,
			wantCount: 2,
		},
		{
			name:  "zero topK keeps every document",
			query: "charger",
			docs: []Document{
				{ID: "a", Content: "usb charger", Score: 0.8},
				{ID: "b", Content: "charger cable", Score: 0.7},
			},
			topK:      0,
			wantCount: 2,
		},
		{
			name:  "query with only stopwords falls back to score",
			query: "   is the   ",
			docs: []Document{
				{ID: "doc1", Content: "some content", Score: 0.5},
				{ID: "doc2", Content: "other content", Score: 0.9},
			},
			topK:      10,
			wantCount: 2,
			wantIDs:   []string{"doc2", "doc1"},
		},
		{
			name:  "title terms count",
			query: "warranty",
			docs: []Document{
				{ID: "doc1", Content: "coverage details", Score: 0.6},
				{ID: "doc2", Title: "Warranty", Content: "coverage details", Score: 0.6},
			},
			topK:      10,
			wantCount: 2,
			wantIDs:   []string{"doc2", "doc1"},
		},
	}

	r := NewSimpleReranker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rerank(context.Background(), tt.query, tt.docs, tt.topK)
			require.NoError(t, err)
			require.Len(t, got, tt.wantCount)
			for i, id := range tt.wantIDs {
				assert.Equal(t, id, got[i].ID, "position %d", i)
			}
			for i := 1; i < len(got); i++ {
				assert.GreaterOrEqual(t, got[i-1].RerankerScore, got[i].RerankerScore)
			}
		})
	}
}

func TestSimpleRerankerNilContext(t *testing.T) {
	r := NewSimpleReranker()
	//nolint:staticcheck // nil context is the case under test
	_, err := r.Rerank(nil, "query", []Document{{ID: "x"}}, 1)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestSimpleRerankerKeepsOriginalRank(t *testing.T) {
	r := NewSimpleReranker()
	docs := []Document{
		{ID: "first", Content: "unrelated text", Score: 0.9},
		{ID: "second", Content: "bluetooth pairing steps", Score: 0.5},
	}
	got, err := r.Rerank(context.Background(), "bluetooth pairing", docs, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].ID)
	assert.Equal(t, 1, got[0].OriginalRank)
	assert.InDelta(t, 0.75, got[0].RerankerScore, 1e-9)
	assert.InDelta(t, 0.45, got[1].RerankerScore, 1e-9)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"The Quick brown-fox", []string{"quick", "brown", "fox"}},
		{"is it on", []string{}},
		{"café crème", []string{"café", "crème"}},
		{"v2 api_key ok", []string{"api_key"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenize(tt.in), tt.in)
	}
}

func TestCalculateTermOverlap(t *testing.T) {
	assert.Equal(t, 0.0, calculateTermOverlap(nil, []string{"a"}))
	assert.Equal(t, 0.5, calculateTermOverlap([]string{"usb", "cable"}, []string{"usb", "port"}))
	assert.Equal(t, 0.5, calculateTermOverlap([]string{"usb", "usb"}, []string{"usb"}))
}
