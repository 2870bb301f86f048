// Package cache holds the Redis client shared by the tag cache, the token
// store and the rate limiter.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"zola/internal/middleware"
	"zola/internal/observability"
)

var client *redis.Client

// errorCounter feeds failed commands into the Redis error metric. Cache
// misses are not failures.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(op string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrorRate.WithLabelValues(op).Inc()
	}
}

// options accepts a redis:// URL or a bare host:port.
func options(addr string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	return redis.ParseURL(addr)
}

// Dial connects to addr and checks the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := options(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// InitRedis dials addr. An empty or unreachable address returns nil, and
// callers fall back to their in-process paths.
func InitRedis(addr string) *redis.Client {
	if strings.TrimSpace(addr) == "" {
		middleware.Logger.Info("Redis disabled, no REDIS_URL")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := Dial(ctx, addr)
	if err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without it", slog.String("error", err.Error()))
		return nil
	}
	middleware.Logger.Info("Redis connected")
	return rdb
}

// SetClient installs rdb as the cache backend. nil disables caching.
func SetClient(rdb *redis.Client) {
	if rdb != nil && rdb != client {
		rdb.AddHook(errorCounter{})
	}
	client = rdb
}

// GetClient returns the installed client, or nil.
func GetClient() *redis.Client {
	return client
}
