package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"logiflow/internal/auth"
	"logiflow/internal/config"
	"logiflow/internal/logger"
	"logiflow/pkg/errors"
	"logiflow/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxMessageSize = 4096
)

// ClientCommand is the inbound protocol: subscribe to or leave a channel.
type ClientCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type ServerAck struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
}

// WSHandler upgrades authenticated HTTP requests to WebSocket
// connections and speaks the subscribe protocol.
type WSHandler struct {
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	cfg      config.RealtimeConfig
	logger   logger.Logger
}

func NewWSHandler(hub *Hub, verifier auth.Verifier, cfg config.RealtimeConfig, log logger.Logger) *WSHandler {
	h := &WSHandler{
		hub:      hub,
		verifier: verifier,
		cfg:      cfg,
		logger:   log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.Serve)
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Serve authenticates the handshake before upgrading. A missing or
// invalid token is refused with 401 and no upgrade takes place.
func (h *WSHandler) Serve(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request)
	claims, err := h.verifier.Verify(token)
	if err != nil {
		metrics.WebSocketHandshakesTotal.WithLabelValues("unauthorized").Inc()
		h.logger.WarnwCtx(c.Request.Context(), "WebSocket handshake refused", "error", err)
		c.JSON(http.StatusUnauthorized, errors.ToErrorResponse(errors.ErrUnauthorized))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.WebSocketHandshakesTotal.WithLabelValues("error").Inc()
		h.logger.ErrorwCtx(c.Request.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	metrics.WebSocketHandshakesTotal.WithLabelValues("ok").Inc()
	client := NewClient(claims, h.cfg.SendBuffer)
	h.logger.Infow("WebSocket connected", "client_id", client.ID, "subject", claims.Subject)

	go h.writePump(conn, client)
	go h.readPump(conn, client)
}

func (h *WSHandler) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.hub.Disconnect(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnw("WebSocket read error", "error", err, "client_id", client.ID)
			}
			return
		}

		var cmd ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.sendAck(client, ServerAck{Action: "error", OK: false, Reason: "malformed command"})
			continue
		}

		switch cmd.Action {
		case "subscribe":
			ok := h.hub.Subscribe(client, cmd.Channel)
			ack := ServerAck{Action: cmd.Action, Channel: cmd.Channel, OK: ok}
			if !ok {
				ack.Reason = "invalid channel"
			}
			h.sendAck(client, ack)
		case "unsubscribe":
			h.hub.Unsubscribe(client, cmd.Channel)
			h.sendAck(client, ServerAck{Action: cmd.Action, Channel: cmd.Channel, OK: true})
		default:
			h.sendAck(client, ServerAck{Action: cmd.Action, OK: false, Reason: "unknown action"})
		}
	}
}

func (h *WSHandler) sendAck(client *Client, ack ServerAck) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.closed {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
