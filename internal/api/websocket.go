package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/extractdesk/backend/internal/models"
)

// WebSocket message types for the snapshot stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams widget snapshots to connected pages
type WebSocketHandler struct {
	widgets        WidgetManager
	upgrader       websocket.Upgrader
	maxMessageSize int64
	logger         *zap.Logger
}

// NewWebSocketHandler creates a new snapshot stream handler
func NewWebSocketHandler(widgets WidgetManager, maxMessageSize int64, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMessageSize <= 0 {
		maxMessageSize = 64 * 1024
	}
	return &WebSocketHandler{
		widgets: widgets,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxMessageSize: maxMessageSize,
		logger:         logger.Named("ws"),
	}
}

// HandleWebSocket upgrades the connection and pushes a snapshot after every
// widget state change until either side goes away
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	w, ok := wsh.widgets.Get(id)
	if !ok {
		return NewNotFoundError("widget", id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	snapshots, cancel := w.Subscribe()
	defer cancel()

	logger := wsh.logger.With(zap.String("widget", shortWidgetID(id)))
	logger.Debug("client connected")

	// Reads run on their own goroutine; gorilla allows one concurrent reader
	// and one concurrent writer, and only this goroutine writes.
	incoming := make(chan WSMessage)
	readDone := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go wsh.readLoop(ws, incoming, readDone, stop, logger)

	if err := wsh.send(ws, WSMessage{Type: MsgTypeConnected, ID: id, Timestamp: time.Now().UnixMilli()}); err != nil {
		return nil
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				// Widget unmounted
				wsh.close(ws, "widget unmounted")
				return nil
			}
			if err := wsh.sendSnapshot(ws, snap); err != nil {
				logger.Debug("snapshot write failed", zap.Error(err))
				return nil
			}
		case msg := <-incoming:
			wsh.handleMessage(ws, id, msg)
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-readDone:
			logger.Debug("client disconnected")
			return nil
		}
	}
}

func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, incoming chan<- WSMessage, done chan<- struct{}, stop <-chan struct{}, logger *zap.Logger) {
	defer close(done)

	ws.SetReadLimit(wsh.maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("connection error", zap.Error(err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		select {
		case incoming <- msg:
		case <-stop:
			return
		}
	}
}

func (wsh *WebSocketHandler) handleMessage(ws *websocket.Conn, id string, msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		// Client pings double as keep-alive for the widget
		if !wsh.widgets.Touch(id) {
			wsh.sendError(ws, "Widget not found", "WIDGET_NOT_FOUND")
			return
		}
		wsh.send(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
	default:
		wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

func (wsh *WebSocketHandler) sendSnapshot(ws *websocket.Conn, snap models.Snapshot) error {
	return wsh.send(ws, WSMessage{
		Type:      MsgTypeSnapshot,
		ID:        snap.WidgetID,
		Payload:   mustJSON(snap),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(msg)
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.send(ws, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSErrorResponse{Type: MsgTypeError, Message: message, Code: code}),
	})
}

func (wsh *WebSocketHandler) close(ws *websocket.Conn, reason string) {
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(wsWriteWait))
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func shortWidgetID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
