// internal/handler/websocket_handler.go
package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pos-device-service/internal/model"
	"pos-device-service/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// EventSource hands out event subscriptions
type EventSource interface {
	Subscribe(types ...model.EventType) (uint64, <-chan model.DeviceEvent)
	Unsubscribe(id uint64)
}

// WebSocketHandler streams device events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	events      EventSource
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(events EventSource, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		connections: NewConnectionManager(),
		events:      events,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
	router.GET("/stats", h.GetStats)
}

// HandleEventConnection upgrades the request and streams events. The
// optional types query parameter is a comma separated event type filter.
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	var types []model.EventType
	var typeNames []string
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, model.EventType(t))
			typeNames = append(typeNames, t)
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Connection:  conn,
		Types:       typeNames,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.Strings("types", typeNames),
	)

	subID, events := h.events.Subscribe(types...)
	done := make(chan struct{})

	go h.handleClientRead(client, done)
	go h.handleClientWrite(client, subID, events, done)
}

// GetStats returns WebSocket connection statistics
// @Summary WebSocket statistics
// @Tags Events
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats} "Connection statistics"
// @Router /ws/stats [get]
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket statistics retrieved", h.connections.GetStats())
}

// handleClientRead drains client frames so pongs and close frames are seen
func (h *WebSocketHandler) handleClientRead(client *Client, done chan<- struct{}) {
	defer close(done)

	client.Connection.SetReadLimit(4096)
	_ = client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		return client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.Connection.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}
	}
}

func (h *WebSocketHandler) handleClientWrite(client *Client, subID uint64, events <-chan model.DeviceEvent, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.events.Unsubscribe(subID)
		h.connections.Unregister(client)
		_ = client.Connection.Close()
		h.logger.Info("Event WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	for {
		select {
		case <-done:
			return

		case ev, ok := <-events:
			if !ok {
				_ = client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
				_ = client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			message := &WebSocketMessage{Type: string(ev.EventType), Data: ev, Timestamp: time.Now()}
			_ = client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteJSON(message); err != nil {
				h.logger.Warn("WebSocket write failed", zap.String("client_id", client.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
