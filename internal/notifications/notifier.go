// Package notifications delivers live comment events to websocket listeners.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/observability"
)

const (
	EventCommentCreated = "comment_created"

	commentChannelPattern = "book:*:comments"
)

// Event is the envelope written to every websocket client.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CommentPayload is the comment_created body.
type CommentPayload struct {
	ID              string    `json:"id"`
	PK              string    `json:"pk"`
	Message         string    `json:"message"`
	PublicationDate time.Time `json:"publicationDate"`
	Book            string    `json:"book"`
	Parent          *string   `json:"parent"`
	Owner           *Owner    `json:"owner,omitempty"`
}

type Owner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Notifier publishes comment events on Redis. Without Redis it hands them
// straight to the local subscriber, which is enough for a single node.
type Notifier struct {
	rdb *redis.Client

	mu    sync.RWMutex
	local func(channel, payload string)
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// CommentChannel is the pub/sub channel for one book's comments.
func CommentChannel(bookID uint) string {
	return "book:" + strconv.FormatUint(uint64(bookID), 10) + ":comments"
}

// ParseCommentChannel returns the book id encoded in a comment channel name.
func ParseCommentChannel(channel string) (uint, error) {
	var id uint
	if _, err := fmt.Sscanf(channel, "book:%d:comments", &id); err != nil {
		return 0, fmt.Errorf("invalid comment channel %q: %w", channel, err)
	}
	return id, nil
}

// NewCommentEvent renders a comment as a comment_created event.
func NewCommentEvent(c *models.Comment) ([]byte, error) {
	pk := strconv.FormatUint(uint64(c.ID), 10)
	body := CommentPayload{
		ID:              models.GlobalID("Comment", pk),
		PK:              pk,
		Message:         c.Message,
		PublicationDate: c.PublicationDate,
		Book:            models.GlobalID("Book", strconv.FormatUint(uint64(c.ContentID), 10)),
	}
	if c.ParentID != nil {
		parent := models.GlobalID("Comment", strconv.FormatUint(uint64(*c.ParentID), 10))
		body.Parent = &parent
	}
	if c.Owner != nil {
		body.Owner = &Owner{ID: models.GlobalID("User", c.Owner.ID.String()), Username: c.Owner.Username}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: EventCommentCreated, Payload: raw})
}

// PublishComment announces a freshly stored comment to its book's listeners.
func (n *Notifier) PublishComment(ctx context.Context, c *models.Comment) error {
	payload, err := NewCommentEvent(c)
	if err != nil {
		return err
	}
	channel := CommentChannel(c.ContentID)

	if n.rdb == nil {
		n.mu.RLock()
		local := n.local
		n.mu.RUnlock()
		if local != nil {
			local(channel, string(payload))
		}
		return nil
	}
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return err
	}
	return nil
}

// StartCommentSubscriber calls onMessage for every comment event until ctx
// is cancelled. A panicking handler is logged and the loop keeps running.
func (n *Notifier) StartCommentSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	handle := func(channel, payload string) {
		defer func() {
			if r := recover(); r != nil {
				middleware.Logger.Error("panic in comment subscriber",
					slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		onMessage(channel, payload)
	}

	if n.rdb == nil {
		n.mu.Lock()
		n.local = handle
		n.mu.Unlock()
		go func() {
			<-ctx.Done()
			n.mu.Lock()
			n.local = nil
			n.mu.Unlock()
		}()
		return nil
	}

	sub := n.rdb.PSubscribe(ctx, commentChannelPattern)
	// Wait for the subscription so events published right after start are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrorRate.WithLabelValues("psubscribe").Inc()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle(msg.Channel, msg.Payload)
			}
		}
	}()
	return nil
}
