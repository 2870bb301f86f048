package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"zola/internal/config"
	"zola/internal/models"
	"zola/internal/notifications"
	"zola/internal/service"
	"zola/internal/testutil"
)

const frontend = "http://front.test"

type testServer struct {
	srv *Server
	db  *gorm.DB
	app *fiber.App
}

func newTestServer(t *testing.T, rdb *redis.Client) *testServer {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	cfg := &config.Config{
		Env:                   "test",
		JWTSecret:             "test-secret-key-with-enough-length!!",
		JWTIssuer:             "zola-api",
		JWTAudience:           "zola-client",
		JWTAccessTTLMinutes:   5,
		JWTRefreshTTLDays:     7,
		AllowedOrigins:        "http://localhost:3001",
		FrontendBaseURL:       frontend,
		MediaRoot:             t.TempDir(),
		MediaURL:              "/medias/",
		AccountActivationDays: 7,
		MaxAvatarBytes:        1 << 20,
		MaxCoverBytes:         1 << 20,
		GraphQLMaxDepth:       12,
		GraphQLIntrospection:  true,
	}
	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	return &testServer{srv: srv, db: db, app: srv.App()}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestHealthCheck(t *testing.T) {
	t.Run("without redis", func(t *testing.T) {
		ts := newTestServer(t, nil)
		resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, "healthy", health.Database)
		assert.Equal(t, "disabled", health.Redis)
	})

	t.Run("redis down", func(t *testing.T) {
		mr, rdb := newMiniRedis(t)
		ts := newTestServer(t, rdb)

		resp, _ := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		mr.Close()
		resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "unhealthy", health.Redis)
	})
}

type gqlResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message    string                 `json:"message"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
}

func TestGraphQL_Transport(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("GET query", func(t *testing.T) {
		target := "/graphql?query=" + url.QueryEscape(`{ viewer { isLoggedIn } }`)
		resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out gqlResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, false, out.Data["viewer"].(map[string]interface{})["isLoggedIn"])
	})

	t.Run("GET rejects mutations", func(t *testing.T) {
		target := "/graphql?query=" + url.QueryEscape(`mutation { revokeToken(input: {refreshToken: "x"}) { revoked } }`)
		resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		var out gqlResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "Can only perform a mutation operation from a POST request.", out.Errors[0].Message)
	})

	t.Run("missing query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, body := ts.do(t, req)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "Must provide query string.")
	})

	t.Run("syntax error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ viewer { "}`))
		req.Header.Set("Content-Type", "application/json")
		resp, body := ts.do(t, req)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		var out gqlResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.NotEmpty(t, out.Errors)
		assert.Equal(t, models.CodeValidation, out.Errors[0].Extensions["code"])
	})
}

func TestGraphQL_BearerToken(t *testing.T) {
	ts := newTestServer(t, nil)
	user := testutil.CreateUser(t, ts.db, "lena@example.com")

	pair, err := ts.srv.tokenService.IssuePair(context.Background(), user)
	require.NoError(t, err)

	query := func(header string) gqlResponse {
		req := httptest.NewRequest(http.MethodPost, "/graphql",
			strings.NewReader(`{"query":"{ viewer { isLoggedIn currentUser { username } } }"}`))
		req.Header.Set("Content-Type", "application/json")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, body := ts.do(t, req)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var out gqlResponse
		require.NoError(t, json.Unmarshal(body, &out))
		return out
	}

	out := query("JWT " + pair.Token)
	viewer := out.Data["viewer"].(map[string]interface{})
	assert.Equal(t, true, viewer["isLoggedIn"])
	assert.Equal(t, "lena", viewer["currentUser"].(map[string]interface{})["username"])

	out = query("Bearer not-a-token")
	assert.Equal(t, false, out.Data["viewer"].(map[string]interface{})["isLoggedIn"])
}

func TestConfirmEmail(t *testing.T) {
	ts := newTestServer(t, nil)

	fresh := testutil.CreateUser(t, ts.db, "fresh@example.com")
	stale := testutil.CreateUser(t, ts.db, "stale@example.com")
	require.NoError(t, ts.db.Model(stale).Update("date_joined", time.Now().AddDate(0, 0, -30)).Error)

	redirect := func(msg string) string {
		if msg == "" {
			return frontend + "/confirm-email"
		}
		return frontend + "/confirm-email?backendError=" + url.QueryEscape(msg)
	}

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "missing key", key: "", want: redirect("No activation key was provided")},
		{name: "malformed key", key: "nope", want: redirect("This activation key is invalid")},
		{name: "unknown key", key: "2f1c9a8e-0d43-4a8e-9a51-1f0e5b7f2c11", want: redirect("This activation key is invalid")},
		{name: "expired key", key: stale.ActivationKey.String(), want: redirect("This activation key has expired")},
		{name: "valid key", key: fresh.ActivationKey.String(), want: redirect("")},
		{name: "already confirmed", key: fresh.ActivationKey.String(), want: redirect("This activation key has expired")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := ts.do(t, httptest.NewRequest(http.MethodGet, "/confirm-email?activation_key="+tt.key, nil))
			assert.Equal(t, fiber.StatusFound, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Location"))
		})
	}

	var confirmed models.User
	require.NoError(t, ts.db.First(&confirmed, "id = ?", fresh.ID).Error)
	assert.True(t, confirmed.ConfirmedEmail)
}

func TestMediaRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	dir := filepath.Join(ts.srv.media.Root(), "avatar")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0o644))

	resp, body := ts.do(t, httptest.NewRequest(http.MethodGet, "/medias/avatar/a.jpg", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpeg", string(body))

	resp, _ = ts.do(t, httptest.NewRequest(http.MethodGet, "/medias/avatar/missing.jpg", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCommentStream_Rejects(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, httptest.NewRequest(http.MethodGet, "/ws/books/1/comments", nil))
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/ws/books/999/comments", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, _ = ts.do(t, req)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCommentStream_DeliversNewComments(t *testing.T) {
	_, rdb := newMiniRedis(t)

	backends := []struct {
		name string
		rdb  *redis.Client
	}{
		{name: "local", rdb: nil},
		{name: "redis", rdb: rdb},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ts := newTestServer(t, b.rdb)
			require.NoError(t, ts.srv.StartWiring())
			t.Cleanup(func() { ts.srv.shutdownFn() })

			owner := testutil.CreateUser(t, ts.db, "owner@example.com")
			book := testutil.CreateBook(t, ts.db, owner, "Solaris")

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			go func() { _ = ts.app.Listener(ln) }()
			t.Cleanup(func() { _ = ts.app.Shutdown() })

			wsURL := "ws://" + ln.Addr().String() + "/ws/books/" + strconv.FormatUint(uint64(book.ID), 10) + "/comments"
			conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
			require.NoError(t, err)
			defer func() { _ = conn.Close() }()

			require.Eventually(t, func() bool { return ts.srv.hub.Listeners(book.ID) == 1 },
				2*time.Second, 10*time.Millisecond)

			comment, err := ts.srv.resolver.Comments.Create(context.Background(), owner.ID,
				service.CreateCommentInput{Message: "A slow, strange book.", ContentID: book.ID})
			require.NoError(t, err)

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
			_, raw, err := conn.ReadMessage()
			require.NoError(t, err)

			var event notifications.Event
			require.NoError(t, json.Unmarshal(raw, &event))
			assert.Equal(t, notifications.EventCommentCreated, event.Type)

			var payload notifications.CommentPayload
			require.NoError(t, json.Unmarshal(event.Payload, &payload))
			assert.Equal(t, strconv.FormatUint(uint64(comment.ID), 10), payload.PK)
			assert.Equal(t, "A slow, strange book.", payload.Message)
			assert.Equal(t, models.GlobalID("Book", strconv.FormatUint(uint64(book.ID), 10)), payload.Book)
		})
	}
}
