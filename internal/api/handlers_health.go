// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	endpoint string
	widgets  WidgetManager
	journal  AttemptJournal
}

// NewHealthHandler creates a new health handler. journal may be nil.
func NewHealthHandler(version, endpoint string, widgets WidgetManager, journal AttemptJournal) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		endpoint: endpoint,
		widgets:  widgets,
		journal:  journal,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uploadEndpoint": h.endpoint,
		"widgets":        h.widgets.Count(),
	}

	if h.journal != nil {
		stats, err := h.journal.Stats(c.Request().Context())
		if err != nil {
			return NewInternalError("failed to read attempt stats", err)
		}
		body["attempts"] = stats
	}

	return c.JSON(http.StatusOK, body)
}
