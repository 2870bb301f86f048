package notifications

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"zola/internal/middleware"
	"zola/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// followers never send data frames, only control traffic
	maxMessageSize = 512

	sendBuffer = 64
)

// dropNotice tells a slow follower it missed events and should refetch the thread.
var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// WSHub is what a Client needs from the hub that owns it.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is one websocket following the comments of a book.
type Client struct {
	Hub    WSHub
	Conn   *websocket.Conn
	BookID uint

	// Send yields queued events in order and is closed on unregister.
	Send <-chan []byte

	mu     sync.Mutex
	queue  chan []byte
	closed bool
}

func NewClient(hub WSHub, conn *websocket.Conn, bookID uint) *Client {
	queue := make(chan []byte, sendBuffer)
	return &Client{Hub: hub, Conn: conn, BookID: bookID, Send: queue, queue: queue}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

// TrySend queues message without blocking. When the queue is full the
// message is dropped and a drop notice is queued if there is room.
func (c *Client) TrySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		return false
	}

	select {
	case c.queue <- message:
		return true
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
	middleware.Logger.Warn("comment stream buffer full, dropped message",
		slog.Uint64("book_id", uint64(c.BookID)),
		slog.String("hub", c.Hub.Name()),
	)
	select {
	case c.queue <- dropNotice:
	default:
	}
	return false
}

// Serve runs the connection until the peer leaves or the hub closes the
// client. It blocks.
func (c *Client) Serve() {
	go c.WritePump()
	c.ReadPump()
}

// ReadPump consumes inbound frames so pongs and close frames are handled,
// then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	extend := func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.Conn.SetPongHandler(extend)

	for {
		_, _, err := c.Conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			middleware.Logger.Info("comment stream closed",
				slog.Uint64("book_id", uint64(c.BookID)),
				slog.String("error", err.Error()),
			)
		}
		return
	}
}

// WritePump writes queued events and keepalive pings. A closed queue sends
// a going-away frame.
func (c *Client) WritePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.Conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.Conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
