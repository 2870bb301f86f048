package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"zola/internal/middleware"
)

// GetJSON decodes the value stored at key into dest. It reports false on a
// miss or when Redis is disabled. A value that no longer decodes is dropped
// and counts as a miss.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	raw, err := client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		middleware.Logger.WarnContext(ctx, "dropping undecodable cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON stores v at key for ttl. It is a no-op when Redis is disabled.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}

// Load returns the value cached at key, or computes it with fetch and
// caches the result for ttl. Redis failures only cost a fetch.
func Load[T any](ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := GetJSON(ctx, key, &cached)
	if err != nil {
		middleware.Logger.DebugContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if hit {
		return cached, nil
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return fresh, err
	}
	if err := SetJSON(ctx, key, fresh, ttl); err != nil {
		middleware.Logger.DebugContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return fresh, nil
}
