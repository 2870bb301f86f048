package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"

	"zola/internal/middleware"
	"zola/internal/observability"
)

const (
	maxConnsPerBook = 256
	maxTotalConns   = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrBookFull   = errors.New("book connection limit reached")
	ErrHubClosed  = errors.New("comment hub is shutting down")
)

// Hub maps book ids to the websocket clients following that book's comments.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[*Client]struct{})}
}

func (h *Hub) Name() string { return "comment hub" }

// Register attaches a connection to bookID. conn may be nil in tests.
func (h *Hub) Register(bookID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrServerFull
	}
	m, ok := h.conns[bookID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[bookID] = m
	}
	if len(m) >= maxConnsPerBook {
		return nil, ErrBookFull
	}

	client := NewClient(h, conn, bookID)
	m[client] = struct{}{}
	h.totalConns++
	observability.CommentStreamConnections.Inc()
	return client, nil
}

// UnregisterClient detaches a client and closes its send queue. Safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.BookID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.BookID)
	}
	h.totalConns--
	observability.CommentStreamConnections.Dec()
	client.close()
}

// Listeners returns how many clients follow bookID.
func (h *Hub) Listeners(bookID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[bookID])
}

// Broadcast queues message for every client following bookID.
func (h *Hub) Broadcast(bookID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[bookID] {
		c.TrySend(message)
	}
}

// StartWiring forwards comment events from the notifier to the matching book's clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartCommentSubscriber(ctx, func(channel, payload string) {
		bookID, err := ParseCommentChannel(channel)
		if err != nil {
			middleware.Logger.Warn("dropping comment event", slog.String("channel", channel), slog.String("error", err.Error()))
			return
		}
		h.Broadcast(bookID, []byte(payload))
	})
}

// Shutdown closes every client's send queue; each WritePump then sends a
// going-away close frame and drops its connection.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, clients := range h.conns {
		for client := range clients {
			client.close()
			observability.CommentStreamConnections.Dec()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
