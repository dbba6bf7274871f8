package routes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/internal/server/middleware"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"

	"github.com/labstack/echo/v4"
)

// documentBody is embedded by requests that operate on a document. Either
// the raw text or a source reference (path, URL, s3://) must be given.
type documentBody struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func pipelineFrom(c echo.Context) middleware.Pipeline {
	return c.(*middleware.AppContext).App.Pipeline
}

func loadDocument(c echo.Context, body documentBody) (common.Document, error) {
	if strings.TrimSpace(body.Text) != "" {
		return common.Document{Source: body.Source, Text: body.Text}, nil
	}
	if strings.TrimSpace(body.Source) == "" {
		return common.Document{}, common.InvalidConfiguration("either text or source is required")
	}
	return pipelineFrom(c).Load(c.Request().Context(), body.Source)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrSourceForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrStoreUnavailable), errors.Is(err, common.ErrUpstreamFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] request failed", "path", c.Path(), "err", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
}
