package signaling

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// hubPingInterval is how often the hub liveness-pings every registered
// client directly, independent of each client's own WritePump ticker;
// it exists to reap clients whose Send queue is already full.
const hubPingInterval = 30 * time.Second

// Hub tracks every locally-connected client and fans out messages by
// room.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // client ID -> client

	register   chan *Client
	unregister chan *Client
	logger     *zap.Logger

	done chan struct{}
}

// NewHub builds an empty hub. Call Run in its own goroutine to start
// processing register/unregister events.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run processes registration events and periodic liveness pings until
// Stop is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			h.logger.Info("client registered", zap.String("client_id", c.ID), zap.String("user", c.User.String()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				delete(h.clients, c.ID)
				c.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("client unregistered", zap.String("client_id", c.ID), zap.String("user", c.User.String()))

		case <-ticker.C:
			h.pingAll()

		case <-h.done:
			return
		}
	}
}

// Stop ends Run's loop.
func (h *Hub) Stop() {
	close(h.done)
}

// pingAll runs on Run's own goroutine, so a stale client can't be
// evicted through the unregister channel here: nothing else is left to
// drain it and Run would deadlock against itself. Evict inline instead.
func (h *Hub) pingAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	ping := Message{Type: MessageTypePing, Timestamp: time.Now()}
	var stale []*Client
	for _, c := range clients {
		select {
		case c.Send <- ping:
		default:
			stale = append(stale, c)
		}
	}
	if len(stale) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range stale {
		if _, ok := h.clients[c.ID]; ok {
			delete(h.clients, c.ID)
			c.closeSend()
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.logger.Info("client unregistered", zap.String("client_id", c.ID), zap.String("user", c.User.String()))
	}
}

// Register adds a client to the hub, blocking until Run processes it.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub, blocking until Run
// processes it.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Get returns the client with the given ID, if currently registered.
func (h *Hub) Get(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	return c, ok
}

// ClientsInRoom returns every locally-registered client currently in
// room.
func (h *Hub) ClientsInRoom(room id.RoomID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for _, c := range h.clients {
		if c.Room == room {
			out = append(out, c)
		}
	}
	return out
}

// DisconnectUser closes and unregisters every client for user in room
// except excludeID, handling the page-refresh case where a new
// connection arrives before the stale one is cleaned up.
func (h *Hub) DisconnectUser(room id.RoomID, user id.UserID, excludeID string) {
	h.mu.RLock()
	var stale []*Client
	for _, c := range h.clients {
		if c.Room == room && c.User == user && c.ID != excludeID {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		c.Conn.Close()
		h.unregister <- c
	}
}

// Len returns the number of locally-registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
