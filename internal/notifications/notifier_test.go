package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zola/internal/models"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func sampleComment() *models.Comment {
	parent := uint(3)
	return &models.Comment{
		ID:              9,
		Message:         "great read",
		PublicationDate: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ContentID:       42,
		ParentID:        &parent,
		Owner:           &models.User{ID: uuid.MustParse("9b2d5c1e-7f3a-4c55-8e0b-1a2b3c4d5e6f"), Username: "ana"},
	}
}

func TestCommentChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "book:42:comments", CommentChannel(42))

	id, err := ParseCommentChannel("book:42:comments")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = ParseCommentChannel("notifications:user:1")
	assert.Error(t, err)
}

func TestNewCommentEvent(t *testing.T) {
	raw, err := NewCommentEvent(sampleComment())
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, EventCommentCreated, event.Type)

	var body CommentPayload
	require.NoError(t, json.Unmarshal(event.Payload, &body))
	assert.Equal(t, "9", body.PK)
	assert.Equal(t, models.GlobalID("Comment", "9"), body.ID)
	assert.Equal(t, models.GlobalID("Book", "42"), body.Book)
	require.NotNil(t, body.Parent)
	assert.Equal(t, models.GlobalID("Comment", "3"), *body.Parent)
	require.NotNil(t, body.Owner)
	assert.Equal(t, "ana", body.Owner.Username)
}

func TestNotifier_PublishComment_Redis(t *testing.T) {
	rdb := setupRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	require.NoError(t, n.StartCommentSubscriber(ctx, func(channel, payload string) {
		if channel == CommentChannel(42) {
			got <- payload
		}
	}))

	require.NoError(t, n.PublishComment(context.Background(), sampleComment()))

	select {
	case payload := <-got:
		assert.Contains(t, payload, `"type":"comment_created"`)
	case <-time.After(time.Second):
		t.Fatal("comment event not received")
	}
}

func TestNotifier_PublishComment_WithoutRedis(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishComment(context.Background(), sampleComment()))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	require.NoError(t, n.StartCommentSubscriber(ctx, func(channel, _ string) { got <- channel }))

	require.NoError(t, n.PublishComment(context.Background(), sampleComment()))
	assert.Equal(t, "book:42:comments", <-got)

	cancel()
	assert.Eventually(t, func() bool {
		n.mu.RLock()
		defer n.mu.RUnlock()
		return n.local == nil
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriberSurvivesPanic(t *testing.T) {
	rdb := setupRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 2)
	require.NoError(t, n.StartCommentSubscriber(ctx, func(_, _ string) {
		calls <- struct{}{}
		panic("boom")
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, n.PublishComment(context.Background(), sampleComment()))
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("message %d not delivered", i)
		}
	}
}
