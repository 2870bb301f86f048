package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what a Limiter does when Redis cannot answer.
type FailPolicy int

const (
	// FailOpen lets the call through.
	FailOpen FailPolicy = iota
	// FailClosed refuses the call.
	FailClosed
)

var errNoStore = errors.New("rate limit store unavailable")

// LimiterConfig sizes a Limiter.
type LimiterConfig struct {
	Limit  int
	Window time.Duration
	Policy FailPolicy
	// Bypass admits every call. Local and test environments set it.
	Bypass bool
}

// Limiter counts calls per resource and caller in fixed Redis windows. It
// guards operations that share a route, such as individual GraphQL
// mutations. A nil Limiter admits everything.
type Limiter struct {
	rdb *redis.Client
	cfg LimiterConfig
}

func NewLimiter(rdb *redis.Client, cfg LimiterConfig) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg}
}

// Allow reports whether the caller in ctx may run resource again. Viewers
// are counted by user id, anonymous callers by client IP.
func (l *Limiter) Allow(ctx context.Context, resource string) bool {
	if l == nil || l.cfg.Bypass {
		return true
	}
	caller := "ip:" + ClientIP(ctx)
	if uid, ok := ViewerID(ctx); ok {
		caller = "user:" + uid.String()
	}

	n, err := l.hit(ctx, "rl:"+resource+":"+caller)
	if err != nil {
		Logger.WarnContext(ctx, "rate limit check failed",
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
		return l.cfg.Policy == FailOpen
	}
	return n <= int64(l.cfg.Limit)
}

// hit bumps the counter at key and returns its new value. The window starts
// with the first hit.
func (l *Limiter) hit(ctx context.Context, key string) (int64, error) {
	if l.rdb == nil {
		return 0, errNoStore
	}
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.cfg.Window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
