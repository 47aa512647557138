// handlers_widget.go - Upload widget operation handlers
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/extractdesk/backend/internal/session"
	"github.com/extractdesk/backend/internal/upload"
	"github.com/extractdesk/backend/internal/view"
	"github.com/extractdesk/backend/internal/widget"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 200
)

// WidgetHandlerImpl implements the WidgetHandler interface
type WidgetHandlerImpl struct {
	widgets    WidgetManager
	journal    AttemptJournal
	maxWidgets int
	logger     *zap.Logger
}

// NewWidgetHandler creates a new widget handler instance. journal may be nil.
func NewWidgetHandler(widgets WidgetManager, journal AttemptJournal, maxWidgets int, logger *zap.Logger) WidgetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WidgetHandlerImpl{
		widgets:    widgets,
		journal:    journal,
		maxWidgets: maxWidgets,
		logger:     logger.Named("api"),
	}
}

// HandleMount creates a widget for a newly opened page
func (h *WidgetHandlerImpl) HandleMount(c echo.Context) error {
	w, err := h.widgets.Mount()
	if err != nil {
		if errors.Is(err, session.ErrTooManyWidgets) {
			return NewTooManyWidgetsError(h.maxWidgets)
		}
		return NewInternalError("failed to mount widget", err)
	}
	return c.JSON(http.StatusCreated, w.Snapshot())
}

// HandleUnmount discards a widget and its selected file
func (h *WidgetHandlerImpl) HandleUnmount(c echo.Context) error {
	id := c.Param("id")
	if !h.widgets.Unmount(id) {
		return NewNotFoundError("widget", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSnapshot returns the widget state as JSON
func (h *WidgetHandlerImpl) HandleSnapshot(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.Snapshot())
}

// HandleSnapshotMsgpack returns the widget state as MessagePack
func (h *WidgetHandlerImpl) HandleSnapshotMsgpack(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(w.Snapshot())
	if err != nil {
		return NewInternalError("failed to encode snapshot", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleView returns the rendered widget fragment
func (h *WidgetHandlerImpl) HandleView(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}

	html, err := view.RenderWidget(w.Snapshot())
	if err != nil {
		return NewInternalError("failed to render widget", err)
	}
	return c.HTML(http.StatusOK, string(html))
}

// HandleChooseFile replaces the selection with the multipart "file" part.
// A request without that part clears the selection, like a picker closed
// without choosing.
func (h *WidgetHandlerImpl) HandleChooseFile(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile(upload.FieldName)
	if errors.Is(err, http.ErrMissingFile) {
		return h.choose(c, w, nil)
	}
	if err != nil {
		return NewBadRequestError("expected a multipart form", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	return h.choose(c, w, &widget.FileUpload{
		Name:        file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Content:     src,
	})
}

// HandleClearFile sets the selection to none
func (h *WidgetHandlerImpl) HandleClearFile(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}
	return h.choose(c, w, nil)
}

func (h *WidgetHandlerImpl) choose(c echo.Context, w *widget.Widget, f *widget.FileUpload) error {
	snap, err := w.ChooseFile(f)
	if err != nil {
		if errors.Is(err, widget.ErrClosed) {
			return NewNotFoundError("widget", w.ID())
		}
		return NewInternalError("failed to store selected file", err)
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleTriggerUpload starts uploading the selected file. The request runs in
// the background and its outcome reaches the page through the snapshot stream.
func (h *WidgetHandlerImpl) HandleTriggerUpload(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}

	_, err = w.StartUpload(context.WithoutCancel(c.Request().Context()))
	switch {
	case errors.Is(err, widget.ErrNoFileSelected):
		return NewNoFileSelectedError()
	case errors.Is(err, widget.ErrUploadInFlight):
		return NewUploadInFlightError()
	case errors.Is(err, widget.ErrClosed):
		return NewNotFoundError("widget", w.ID())
	case err != nil:
		return NewInternalError("failed to start upload", err)
	}

	h.logger.Debug("upload started", zap.String("widget", w.ID()))
	return c.JSON(http.StatusAccepted, w.Snapshot())
}

// HandleDismissNotification removes a notification from the widget
func (h *WidgetHandlerImpl) HandleDismissNotification(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}

	nid := c.Param("nid")
	if !w.DismissNotification(nid) {
		return NewNotFoundError("notification", nid)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleListAttempts returns the journaled upload attempts of a widget, newest first
func (h *WidgetHandlerImpl) HandleListAttempts(c echo.Context) error {
	w, err := h.lookup(c)
	if err != nil {
		return err
	}
	if h.journal == nil {
		return NewNotFoundError("attempt journal", "disabled")
	}

	limit := defaultAttemptLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxAttemptLimit)
	}

	attempts, err := h.journal.List(c.Request().Context(), w.ID(), limit)
	if err != nil {
		return NewInternalError("failed to list attempts", err)
	}
	return c.JSON(http.StatusOK, attempts)
}

// lookup resolves :id and refreshes the widget's keep-alive
func (h *WidgetHandlerImpl) lookup(c echo.Context) (*widget.Widget, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	w, ok := h.widgets.Get(id)
	if !ok {
		return nil, NewNotFoundError("widget", id)
	}
	return w, nil
}
