// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/extractdesk/backend/internal/models"
	"github.com/extractdesk/backend/internal/widget"
)

// WidgetHandler handles the upload widget operations
type WidgetHandler interface {
	HandleMount(c echo.Context) error
	HandleUnmount(c echo.Context) error
	HandleSnapshot(c echo.Context) error
	HandleSnapshotMsgpack(c echo.Context) error
	HandleView(c echo.Context) error
	HandleChooseFile(c echo.Context) error
	HandleClearFile(c echo.Context) error
	HandleTriggerUpload(c echo.Context) error
	HandleDismissNotification(c echo.Context) error
	HandleListAttempts(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StreamHandler pushes widget snapshots to the page
type StreamHandler interface {
	HandleWebSocket(c echo.Context) error
}

// WidgetManager defines the interface for widget lifecycle management
// This allows mocking in tests
type WidgetManager interface {
	Mount() (*widget.Widget, error)
	Get(id string) (*widget.Widget, bool)
	Touch(id string) bool
	Unmount(id string) bool
	Count() int
}

// AttemptJournal exposes recorded upload attempts
type AttemptJournal interface {
	List(ctx context.Context, widgetID string, limit int) ([]models.Attempt, error)
	Stats(ctx context.Context) (map[models.AttemptOutcome]int, error)
}
