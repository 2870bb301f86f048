package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zola/internal/middleware"
)

const (
	UserTagsKeyPrefix = "tags:users:%s"
	BookTagsKeyPrefix = "tags:books:%s"
	RefreshKeyPrefix  = "refresh:%s"
	BlacklistPrefix   = "blacklist:%s"
)

const (
	TagsTTL = 60 * time.Second
)

// UserTagsKey caches the most common user tags matching name.
func UserTagsKey(name string) string {
	return fmt.Sprintf(UserTagsKeyPrefix, strings.ToLower(name))
}

// BookTagsKey caches the most common book tags matching name.
func BookTagsKey(name string) string {
	return fmt.Sprintf(BookTagsKeyPrefix, strings.ToLower(name))
}

func refreshKey(token string) string {
	return fmt.Sprintf(RefreshKeyPrefix, token)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf(BlacklistPrefix, jti)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// InvalidatePrefix drops every key starting with prefix.
func InvalidatePrefix(ctx context.Context, prefix string) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache scan failed", slog.String("prefix", prefix), slog.String("error", err.Error()))
		return
	}
	if len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateUserTags drops every cached user tag list.
func InvalidateUserTags(ctx context.Context) {
	InvalidatePrefix(ctx, "tags:users:")
}

// InvalidateBookTags drops every cached book tag list.
func InvalidateBookTags(ctx context.Context) {
	InvalidatePrefix(ctx, "tags:books:")
}
