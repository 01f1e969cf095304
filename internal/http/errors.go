package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, vectorstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vectorstore.ErrMissingTenant),
		errors.Is(err, vectorstore.ErrInvalidTenant),
		errors.Is(err, vectorstore.ErrInvalidConfig),
		errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, storemanager.ErrMaintenanceInProgress):
		return http.StatusConflict
	case errors.Is(err, vectorstore.ErrConnectionFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler writes every error as an ErrorResponse. Internal errors
// are logged and their message is not exposed.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := statusFor(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			if code == http.StatusInternalServerError {
				msg = http.StatusText(code)
			}
		}

		resp := ErrorResponse{Error: msg, RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, resp)
		}
		if writeErr != nil {
			logger.Warn("writing error response failed", zap.Error(writeErr))
		}
	}
}
