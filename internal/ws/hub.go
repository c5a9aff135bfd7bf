package ws

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/metrics"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Dispatcher consumes inbound frames. Dispatch is called from a single
// goroutine per connection, in arrival order.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, data []byte)
	Disconnect(connID string)
}

type Config struct {
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	AllowedOrigins    []string
}

func DefaultConfig() Config {
	return Config{
		MaxMessageSize:    maxMessageSize,
		SendBuffer:        512,
		MessagesPerSecond: messagesPerSecond,
		MessageBurst:      messageBurst,
	}
}

// The set of active connections and the room each one belongs to
type Hub struct {
	cfg        Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	dispatcher Dispatcher

	// Connections by id
	clients map[string]*Client

	// Connections by room
	rooms map[string]map[string]*Client

	// Register requests from connections
	register chan *Client

	// Unregister requests from connections
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

func NewHub(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 512
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger.Named("hub"),
		metrics:    m,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetDispatcher must be called before Run.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Run processes registrations until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			close(client.registered)

			h.metrics.ConnectionOpened()
			h.logger.Debug("Connection registered", zap.String("conn_id", client.id), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				h.detach(client)
				delete(h.clients, client.id)
				close(client.send)
				h.metrics.ConnectionClosed()
			}
			total := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("Connection unregistered", zap.String("conn_id", client.id), zap.Int("total", total))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				h.detach(client)
				delete(h.clients, id)
				close(client.send)
				h.metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Join moves the connection into roomID and returns the room it left, if any.
func (h *Hub) Join(connID, roomID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return "", ErrUnknownConnection
	}
	prev := client.roomID
	if prev == roomID {
		return prev, nil
	}
	h.detach(client)

	clients, ok := h.rooms[roomID]
	if !ok {
		clients = make(map[string]*Client)
		h.rooms[roomID] = clients
	}
	clients[connID] = client
	client.roomID = roomID

	h.logger.Info("📥 Connection joined room",
		zap.String("conn_id", connID), zap.String("room_id", roomID), zap.Int("room_size", len(clients)))
	return prev, nil
}

// Leave removes the connection from its room and returns that room.
func (h *Hub) Leave(connID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return ""
	}
	prev := client.roomID
	h.detach(client)
	return prev
}

// CurrentRoom is the room the connection is in, if any.
func (h *Hub) CurrentRoom(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok || client.roomID == "" {
		return "", false
	}
	return client.roomID, true
}

// Send queues data for one connection. It never blocks; a connection whose
// buffer is full is closed.
func (h *Hub) Send(connID string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	return h.enqueue(client, data)
}

// Broadcast queues data for every connection in roomID except one.
func (h *Hub) Broadcast(roomID string, data []byte, except string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.rooms[roomID] {
		if id == except {
			continue
		}
		h.enqueue(client, data)
	}
}

func (h *Hub) enqueue(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		h.metrics.SlowClientDropped()
		h.logger.Warn("🐢 Send buffer full, dropping connection",
			zap.String("conn_id", client.id), zap.String("room_id", client.roomID))
		client.kick()
		return false
	}
}

// detach must be called with h.mu held.
func (h *Hub) detach(client *Client) {
	if client.roomID == "" {
		return
	}
	if clients, ok := h.rooms[client.roomID]; ok {
		delete(clients, client.id)
		if len(clients) == 0 {
			delete(h.rooms, client.roomID)
			h.logger.Debug("Room has no connections", zap.String("room_id", client.roomID))
		}
	}
	client.roomID = ""
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize is the number of connections currently in roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ActiveRooms lists rooms with at least one connection.
func (h *Hub) ActiveRooms() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
