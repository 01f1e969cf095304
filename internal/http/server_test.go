package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/events"
	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const productText = "Wireless headphones with forty hours of battery life. " +
	"Active noise cancelling keeps the commute quiet. " +
	"The case charges over USB-C in ninety minutes."

func newTestManager(t *testing.T) *storemanager.Manager {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := storemanager.DefaultConfig()
	cfg.Indexer.BatchDelay = 0
	cfg.Indexer.OverlapSize = 0
	cfg.Cluster.Seed = 7

	m, err := storemanager.New(cfg, store, embeddings.NewStaticProvider(32), events.NewBus(nil), nil)
	require.NoError(t, err)
	return m
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(newTestManager(t), zap.NewNop(), &Config{Host: "localhost", Port: 8085})
	require.NoError(t, err)
	return server
}

// do sends a request as tenant and returns the recorder. body is encoded
// as JSON unless nil.
func do(t *testing.T, s *Server, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(HeaderTenantID, tenant)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func indexProduct(t *testing.T, s *Server, tenant string) *indexer.Result {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/documents", tenant, DocumentRequest{
		Content:     productText,
		Title:       "Headphones",
		ContentType: vectorstore.ContentTypeProduct,
		Metadata:    vectorstore.Metadata{"sku": "HP-100"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*indexer.Result](t, rec)
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(newTestManager(t), zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8085, server.config.Port)
		assert.NotNil(t, server.Echo())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newTestManager(t), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when manager is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store manager cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	rec := do(t, server, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Healthy)
}

func TestTenantHeaderRequired(t *testing.T) {
	server := setupTestServer(t)

	tests := []struct {
		name   string
		tenant string
	}{
		{"missing", ""},
		{"invalid characters", "acme/../globex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodGet, "/api/v1/stats", tt.tenant, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestDocumentLifecycle(t *testing.T) {
	server := setupTestServer(t)
	res := indexProduct(t, server, "acme")
	require.True(t, res.Success)
	require.NotEmpty(t, res.DocumentID)
	path := "/api/v1/documents/" + res.DocumentID

	rec := do(t, server, http.MethodGet, path, "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[vectorstore.Document](t, rec)
	assert.Equal(t, "Headphones", doc.Title)
	assert.Equal(t, "acme", doc.TenantID)

	// Another tenant cannot see, change or delete the document.
	assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodGet, path, "globex", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodPut, path, "globex",
		DocumentRequest{Content: "hijacked", ContentType: vectorstore.ContentTypeProduct}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodDelete, path, "globex", nil).Code)

	rec = do(t, server, http.MethodPut, path, "acme", DocumentRequest{
		Content:     productText + " Now with multipoint pairing.",
		Title:       "Headphones v2",
		ContentType: vectorstore.ContentTypeProduct,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, res.DocumentID, decode[*indexer.Result](t, rec).DocumentID)

	rec = do(t, server, http.MethodGet, path+"/versions", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[[]storemanager.Backup](t, rec)
	require.Len(t, versions, 1)
	assert.Equal(t, "Headphones", versions[0].Title)

	assert.Equal(t, http.StatusNoContent, do(t, server, http.MethodDelete, path, "acme", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodGet, path, "acme", nil).Code)
}

func TestHandleIndexValidation(t *testing.T) {
	server := setupTestServer(t)

	t.Run("empty content", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/documents", "acme", DocumentRequest{Title: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[ErrorResponse](t, rec).Error, "content")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTenantID, "acme")
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleBatchIndex(t *testing.T) {
	server := setupTestServer(t)

	rec := do(t, server, http.MethodPost, "/api/v1/documents/batch", "acme", BatchRequest{
		Documents: []DocumentRequest{
			{Content: productText, Title: "One", ContentType: vectorstore.ContentTypeProduct},
			{Content: "Returns are accepted within thirty days.", Title: "Two", ContentType: vectorstore.ContentTypeFAQ},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := decode[indexer.BatchResult](t, rec)
	assert.Equal(t, 2, batch.Processed)
	assert.Zero(t, batch.Failed)
	for _, r := range batch.Results {
		assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/api/v1/documents/"+r.DocumentID, "acme", nil).Code)
	}

	rec = do(t, server, http.MethodPost, "/api/v1/documents/batch", "acme", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	server := setupTestServer(t)
	res := indexProduct(t, server, "acme")
	indexProduct(t, server, "globex")

	body := map[string]any{"query": "battery life", "threshold": -1, "limit": 10}
	rec := do(t, server, http.MethodPost, "/api/v1/search", "acme", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[search.Response](t, rec)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "acme", r.Document.TenantID)
	}

	// The tenant in the body is ignored.
	body["tenant_id"] = "globex"
	rec = do(t, server, http.MethodPost, "/api/v1/search", "acme", body)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, r := range decode[search.Response](t, rec).Results {
		assert.Equal(t, "acme", r.Document.TenantID)
	}

	t.Run("empty query", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/search", "acme", map[string]any{"query": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("multi-modal reference must belong to tenant", func(t *testing.T) {
		mm := map[string]any{
			"query":       "battery",
			"threshold":   -1,
			"multi_modal": map[string]any{"reference_document_id": res.DocumentID, "min_reference_similarity": -1},
		}
		assert.Equal(t, http.StatusOK, do(t, server, http.MethodPost, "/api/v1/search", "acme", mm).Code)
		assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodPost, "/api/v1/search", "globex", mm).Code)
	})
}

func TestHandleContextualSearch(t *testing.T) {
	server := setupTestServer(t)
	indexProduct(t, server, "acme")

	rec := do(t, server, http.MethodPost, "/api/v1/search/contextual", "acme", map[string]any{
		"query":     "what about the case?",
		"history":   []string{"wireless headphones"},
		"threshold": -1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[search.Response](t, rec).Results)
}

func TestHandleStatsAndClusters(t *testing.T) {
	server := setupTestServer(t)
	indexProduct(t, server, "acme")

	rec := do(t, server, http.MethodGet, "/api/v1/stats", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[storemanager.Statistics](t, rec)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, stats.DocumentsByType[vectorstore.ContentTypeProduct])

	rec = do(t, server, http.MethodGet, "/api/v1/clusters", "acme", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/v1/stats", "globex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[storemanager.Statistics](t, rec).TotalDocuments)
}

func TestHandleMaintenance(t *testing.T) {
	server := setupTestServer(t)
	indexProduct(t, server, "acme")

	rec := do(t, server, http.MethodPost, "/api/v1/maintenance/reindex", "acme", ReindexRequest{Wait: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reindex := decode[storemanager.ReindexResult](t, rec)
	assert.Equal(t, 1, reindex.Processed)

	first := server.manager.MaintenanceStatus().Reindexing.CompletedAt
	rec = do(t, server, http.MethodPost, "/api/v1/maintenance/reindex", "acme", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		st := server.manager.MaintenanceStatus().Reindexing
		return !st.InProgress && !st.CompletedAt.Equal(first)
	}, 5*time.Second, 10*time.Millisecond)

	rec = do(t, server, http.MethodPost, "/api/v1/maintenance/rebalance", "acme", RebalanceRequest{})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, server, http.MethodPost, "/api/v1/maintenance/cleanup", "acme", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, server, http.MethodGet, "/api/v1/maintenance", "acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[storemanager.MaintenanceStatus](t, rec)
	assert.False(t, status.Cleanup.InProgress)
	assert.False(t, status.Cleanup.CompletedAt.IsZero())
}

func TestHandleReindexRejectsConcurrentRun(t *testing.T) {
	server := setupTestServer(t)
	indexProduct(t, server, "acme")
	indexProduct(t, server, "acme")

	rec := do(t, server, http.MethodPost, "/api/v1/maintenance/reindex", "acme", ReindexRequest{BatchSize: 1, DelayMS: 300})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	status := decode[storemanager.MaintenanceStatus](t, rec)
	assert.True(t, status.Reindexing.InProgress)

	rec = do(t, server, http.MethodPost, "/api/v1/maintenance/reindex", "acme", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	assert.Eventually(t, func() bool {
		return !server.manager.MaintenanceStatus().Reindexing.InProgress
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, server.manager.MaintenanceStatus().Reindexing.LastError)
}

func TestRateLimiter(t *testing.T) {
	server, err := NewServer(newTestManager(t), zap.NewNop(), &Config{RequestsPerSecond: 0.001, Burst: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/api/v1/maintenance", "acme", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(t, server, http.MethodGet, "/api/v1/maintenance", "acme", nil).Code)
	// Health is not rate limited.
	assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/health", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", vectorstore.ErrNotFound, http.StatusNotFound},
		{"missing tenant", vectorstore.ErrMissingTenant, http.StatusBadRequest},
		{"empty query", search.ErrEmptyQuery, http.StatusBadRequest},
		{"busy", storemanager.ErrMaintenanceInProgress, http.StatusConflict},
		{"store down", vectorstore.ErrConnectionFailed, http.StatusServiceUnavailable},
		{"other", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t)
	rec := do(t, server, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
