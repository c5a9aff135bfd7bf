package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/ratelimit"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
	maxViolations     = 1000
)

// A single websocket connection. Its id doubles as the author id of
// everything drawn through it.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	registered  chan struct{}
	roomID      string // guarded by hub.mu
	rateLimiter *ratelimit.Limiter
	id          string
	logger      *zap.Logger

	closeOnce sync.Once
}

func (h *Hub) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and, when origins are configured, only those origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWs upgrades the request and starts the connection's pumps. A non-empty
// ?room= query joins that room as if join_room had been sent first.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")

	conn, err := hub.upgrader().Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("Upgrade error", zap.Error(err))
		return
	}

	id := uuid.NewString()
	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, hub.cfg.SendBuffer),
		registered:  make(chan struct{}),
		rateLimiter: ratelimit.NewLimiter(hub.cfg.MessagesPerSecond, hub.cfg.MessageBurst),
		id:          id,
		logger:      hub.logger.With(zap.String("conn_id", id)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}
	<-client.registered

	go client.writePump()
	go client.readPump(roomID)
}

// kick closes the socket; the read pump then unregisters the client.
func (c *Client) kick() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) readPump(autoJoin string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		if d := c.hub.dispatcher; d != nil {
			d.Disconnect(c.id)
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.kick()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if autoJoin != "" {
		c.dispatch(ctx, protocol.MustEncode(protocol.EventJoinRoom, protocol.JoinRoom{RoomID: autoJoin}))
	}

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("WebSocket closed", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", zap.Int("type", messageType))
			continue
		}

		if !c.rateLimiter.Allow() {
			c.hub.metrics.RateLimited()
			violations := c.rateLimiter.Violations()
			if violations%100 == 1 {
				c.logger.Warn("⚠️ Rate limit exceeded",
					zap.String("room_id", c.hub.roomOf(c.id)), zap.Int("violations", violations))
			}
			if violations > maxViolations {
				c.logger.Warn("🚫 Disconnecting for excessive rate limit violations")
				return
			}
			continue
		}

		c.dispatch(ctx, message)
	}
}

func (c *Client) dispatch(ctx context.Context, message []byte) {
	if d := c.hub.dispatcher; d != nil {
		d.Dispatch(ctx, c.id, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.kick()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) roomOf(connID string) string {
	room, _ := h.CurrentRoom(connID)
	return room
}
