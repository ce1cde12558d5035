package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"payroll-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketHandler streams claim status changes to the claimant.
type WebSocketHandler struct {
	claims   *services.ClaimService
	hub      *services.ClaimHub
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(claims *services.ClaimService, hub *services.ClaimHub) *WebSocketHandler {
	return &WebSocketHandler{
		claims: claims,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ClaimStatusStream handles GET /api/claims/:id/ws. The server sends the current
// status on connect, every change after that, and closes after a terminal status.
func (h *WebSocketHandler) ClaimStatusStream(c *gin.Context) {
	claimID := c.Param("id")
	if _, err := h.claims.GetClaimStatus(c.Request.Context(), claimID); err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	messageChan := make(chan interface{}, 16)
	pongChan := make(chan map[string]interface{}, 4)

	h.hub.RegisterClient(clientID, claimID, messageChan)
	defer h.hub.UnregisterClient(clientID)

	log := logrus.WithFields(logrus.Fields{"client_id": clientID, "claim_id": claimID})
	log.Debug("📡 WebSocket client connected")

	// Read after registering so a change in between is not lost.
	view, err := h.claims.GetClaimStatus(c.Request.Context(), claimID)
	if err != nil {
		return
	}
	current := services.ClaimStatusMessage{
		Type:      "claim_status",
		ClaimID:   view.ClaimID,
		Status:    view.Status,
		Timestamp: time.Now().Unix(),
	}
	if !h.write(conn, current) || view.Status.Terminal() {
		h.closeNormal(conn)
		return
	}

	readDone := make(chan struct{})
	go h.readLoop(conn, pongChan, readDone, log)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-messageChan:
			if !h.write(conn, msg) {
				return
			}
			if m, ok := msg.(services.ClaimStatusMessage); ok && m.Status.Terminal() {
				h.closeNormal(conn)
				return
			}
		case pong := <-pongChan:
			if !h.write(conn, pong) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-readDone:
			log.Debug("🔌 WebSocket client disconnected")
			return
		}
	}
}

// readLoop only serves keepalive; clients send nothing else.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, pongChan chan<- map[string]interface{}, done chan<- struct{}, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("❌ [WebSocket] PANIC recovered in read goroutine: %v", r)
		}
		close(done)
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		var msg map[string]interface{}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if t, _ := msg["type"].(string); t == "ping" {
			select {
			case pongChan <- map[string]interface{}{"type": "pong", "timestamp": time.Now().Unix()}:
			default:
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, msg interface{}) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg) == nil
}

func (h *WebSocketHandler) closeNormal(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "claim settled"),
		time.Now().Add(wsWriteTimeout))
}
