// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Widgets        WidgetManager
	Journal        AttemptJournal // nil when the journal is disabled
	UploadEndpoint string
	MaxWidgets     int
	MaxMessageSize int64
	Version        string
	Logger         *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Widget WidgetHandler
	Stream StreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.UploadEndpoint, deps.Widgets, deps.Journal),
		Widget: NewWidgetHandler(deps.Widgets, deps.Journal, deps.MaxWidgets, deps.Logger),
		Stream: NewWebSocketHandler(deps.Widgets, deps.MaxMessageSize, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Widget lifecycle
	widgets := apiGroup.Group("/widgets")
	widgets.POST("", handlers.Widget.HandleMount)
	widgets.GET("/:id", handlers.Widget.HandleSnapshot)
	widgets.DELETE("/:id", handlers.Widget.HandleUnmount)
	widgets.GET("/:id/msgpack", handlers.Widget.HandleSnapshotMsgpack)
	widgets.GET("/:id/view", handlers.Widget.HandleView)

	// Selection and upload
	widgets.PUT("/:id/file", handlers.Widget.HandleChooseFile)
	widgets.DELETE("/:id/file", handlers.Widget.HandleClearFile)
	widgets.POST("/:id/upload", handlers.Widget.HandleTriggerUpload)
	widgets.DELETE("/:id/notifications/:nid", handlers.Widget.HandleDismissNotification)
	widgets.GET("/:id/attempts", handlers.Widget.HandleListAttempts)

	// Snapshot push
	widgets.GET("/:id/ws", handlers.Stream.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, exposeErrorDetails bool) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
	ExposeErrorDetails = exposeErrorDetails
}
