package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
)

// maxBatchDocuments bounds POST /api/v1/documents/batch.
const maxBatchDocuments = 1000

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// handleHealth reports ok when every manager check passes, 503 otherwise.
func (s *Server) handleHealth(c echo.Context) error {
	report := s.manager.HealthCheck(c.Request().Context(), "")
	if !report.Healthy {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Report: report})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Report: report})
}

func (s *Server) handleIndex(c echo.Context) error {
	var req DocumentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	res, err := s.manager.IndexContent(c.Request().Context(), req.Content, req.Title, req.options(tenantOf(c)))
	if err != nil {
		return err
	}
	if !res.Success {
		return c.JSON(http.StatusUnprocessableEntity, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleBatchIndex(c echo.Context) error {
	var req BatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	switch {
	case len(req.Documents) == 0:
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	case len(req.Documents) > maxBatchDocuments:
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too many documents in batch")
	}

	tenant := tenantOf(c)
	items := make([]indexer.BatchItem, len(req.Documents))
	for i, d := range req.Documents {
		items[i] = indexer.BatchItem{Content: d.Content, Title: d.Title, Options: d.options(tenant)}
	}
	return c.JSON(http.StatusOK, s.manager.BatchIndexContent(c.Request().Context(), items))
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.manager.GetDocument(c.Request().Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var req DocumentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}
	if _, err := s.manager.GetDocument(ctx, tenantOf(c), id); err != nil {
		return err
	}

	opts := req.options(tenantOf(c))
	opts.DocumentID = ""
	res, err := s.manager.UpdateDocument(ctx, id, req.Content, req.Title, opts)
	if err != nil {
		return err
	}
	if !res.Success {
		return c.JSON(http.StatusUnprocessableEntity, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := s.manager.GetDocument(ctx, tenantOf(c), id); err != nil {
		return err
	}
	if err := s.manager.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleVersions(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.manager.GetDocument(c.Request().Context(), tenantOf(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.manager.Backups(id))
}

func (s *Server) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()

	var req SearchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Options.TenantID = tenantOf(c)

	if req.MultiModal == nil {
		resp, err := s.manager.Search().Search(ctx, req.Query, req.Options)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}

	if _, err := s.manager.GetDocument(ctx, req.Options.TenantID, req.MultiModal.ReferenceDocumentID); err != nil {
		return err
	}
	resp, err := s.manager.Search().MultiModalSearch(ctx, req.Query, req.Options, *req.MultiModal)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleContextualSearch(c echo.Context) error {
	var req ContextualSearchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Options.TenantID = tenantOf(c)

	resp, err := s.manager.Search().ContextualSearch(c.Request().Context(), req.Query, req.History, req.Options)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClusterStats(c echo.Context) error {
	stats, err := s.manager.Clusters().GetClusterStats(c.Request().Context(), tenantOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.manager.Statistics(c.Request().Context(), tenantOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleMaintenanceStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.MaintenanceStatus())
}

// handleReindex starts a tenant reindex in the background and answers 202,
// or runs it within the request when the body sets wait.
func (s *Server) handleReindex(c echo.Context) error {
	var req ReindexRequest
	if c.Request().ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	tenant := tenantOf(c)
	opts := storemanager.ReindexOptions{
		BatchSize: req.BatchSize,
		Delay:     time.Duration(req.DelayMS) * time.Millisecond,
	}

	if req.Wait {
		res, err := s.manager.ReindexStore(c.Request().Context(), tenant, opts)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}

	ctx := context.WithoutCancel(c.Request().Context())
	err := s.manager.StartReindex(ctx, tenant, opts, func(_ *storemanager.ReindexResult, err error) {
		if err != nil {
			s.logger.Warn("background reindex failed", zap.String("tenant_id", tenant), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, s.manager.MaintenanceStatus())
}

func (s *Server) handleRebalance(c echo.Context) error {
	var req RebalanceRequest
	if c.Request().ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	res, err := s.manager.RebalanceClusters(c.Request().Context(), tenantOf(c), req.ContentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCleanup(c echo.Context) error {
	res, err := s.manager.Cleanup(c.Request().Context(), tenantOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
