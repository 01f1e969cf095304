package vectorstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  QdrantConfig
		wantErr bool
	}{
		{"valid", QdrantConfig{Host: "localhost", Port: 6334, VectorSize: 384}, false},
		{"missing host", QdrantConfig{Port: 6334, VectorSize: 384}, true},
		{"bad port", QdrantConfig{Host: "localhost", Port: 70000, VectorSize: 384}, true},
		{"missing vector size", QdrantConfig{Host: "localhost", Port: 6334}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	var c QdrantConfig
	c.ApplyDefaults()
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 6334, c.Port)
	assert.Equal(t, "embedlife", c.CollectionPrefix)
	assert.Equal(t, uint32(256), c.ScrollPageSize)
}

func TestPointID(t *testing.T) {
	id := uuid.New().String()
	assert.Equal(t, id, pointID(id).GetUuid(), "uuids pass through")

	a := pointID("doc-1").GetUuid()
	assert.Equal(t, a, pointID("doc-1").GetUuid(), "name-based ids are stable")
	assert.NotEqual(t, a, pointID("doc-2").GetUuid())
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestDocumentPayload(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := &Document{
		ID:          "c-1",
		Content:     "chunk text",
		ContentType: ContentTypeProduct,
		TenantID:    "acme",
		ParentID:    "p",
		ChunkIndex:  1,
		ChunkCount:  0,
		CreatedAt:   created,
		Metadata:    Metadata{"rating": 4.5, "brand": "zeta"},
	}

	p := documentPayload(doc)
	assert.Equal(t, "true", p[keyIsChunk].GetStringValue())
	assert.Equal(t, "4.5", p["meta.rating"].GetStringValue(), "metadata is stored as keyword strings")
	assert.Equal(t, string(StatusActive), p["status"].GetStringValue())

	back := payloadDocument(p, []float32{1, 2})
	assert.Equal(t, "c-1", back.ID)
	assert.Equal(t, "p", back.ParentID)
	assert.Equal(t, 1, back.ChunkIndex)
	assert.True(t, created.Equal(back.CreatedAt))
	rating, ok := back.Metadata.Float("rating")
	require.True(t, ok)
	assert.Equal(t, 4.5, rating)
	assert.Equal(t, []float32{1, 2}, back.Embedding)
}

func TestPayloadMembership(t *testing.T) {
	_, ok := payloadMembership(map[string]*qdrant.Value{keyID: stringValue("d")})
	assert.False(t, ok)

	m, ok := payloadMembership(map[string]*qdrant.Value{
		keyID:                stringValue("d"),
		keyClusterID:         stringValue("c"),
		keyClusterSimilarity: {Kind: &qdrant.Value_DoubleValue{DoubleValue: 0.9}},
	})
	require.True(t, ok)
	assert.Equal(t, "c", m.ClusterID)
	assert.Equal(t, 0.9, m.SimilarityToCentroid)
}

func TestVectorQueryConditions(t *testing.T) {
	conds := vectorQueryConditions(VectorQuery{
		TenantID:      "acme",
		ContentTypes:  []ContentType{ContentTypeFAQ, ContentTypeReview},
		ExcludeChunks: true,
		Filters:       map[string]string{"b": "2", "a": "1"},
	})
	require.Len(t, conds, 5)

	keys := make([]string, len(conds))
	for i, c := range conds {
		keys[i] = c.GetField().GetKey()
	}
	assert.Equal(t, []string{keyTenantID, keyContentType, keyIsChunk, "meta.a", "meta.b"}, keys)
	assert.Equal(t, []string{"faq", "review"}, conds[1].GetField().GetMatch().GetKeywords().GetStrings())

	assert.Nil(t, mustFilter(nil))
	assert.Nil(t, documentFilter(DocumentFilter{}))
}

func TestIsAttachedKey(t *testing.T) {
	assert.True(t, isAttachedKey(keyClusterID))
	assert.True(t, isAttachedKey("side.sku"))
	assert.False(t, isAttachedKey("meta.sku"))
	assert.False(t, isAttachedKey(keyTenantID))
}
