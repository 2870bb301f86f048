// Package middleware holds the fiber middleware shared by every route and the
// process-wide structured logger.
package middleware

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide logger. Records logged with a request context
// carry its request, trace and viewer ids.
var Logger *slog.Logger

type requestIDKey struct{}
type traceIDKey struct{}

type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		r.AddAttrs(slog.String("request_id", v))
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		r.AddAttrs(slog.String("trace_id", v))
	}
	if viewer, ok := ViewerID(ctx); ok {
		r.AddAttrs(slog.String("viewer_id", viewer.String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	InitLogger(os.Getenv("APP_ENV"))
}

// InitLogger installs the global logger: JSON in production, text elsewhere.
// LOG_LEVEL (debug, info, warn, error) overrides the info default.
func InitLogger(env string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	Logger = slog.New(&ctxHandler{handler})
	slog.SetDefault(Logger)
}

// ContextMiddleware copies the request and trace ids from fiber locals into
// the user context, where services and resolvers log from.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if v, ok := c.Locals("requestid").(string); ok {
			ctx = context.WithValue(ctx, requestIDKey{}, v)
		}
		if v, ok := c.Locals("traceID").(string); ok {
			ctx = context.WithValue(ctx, traceIDKey{}, v)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger logs one line per request. Probes log at debug, client
// errors at warn and server errors at error.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		fields := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}

		level := slog.LevelInfo
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		case probes[c.Path()]:
			level = slog.LevelDebug
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
		}
		Logger.LogAttrs(c.UserContext(), level, "request", fields...)

		return err
	}
}
