package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// queryLogger sends GORM output to slog. Errors and slow statements are
// always reported; every statement is logged at Info.
type queryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
}

func newQueryLogger(l *slog.Logger) logger.Interface {
	return &queryLogger{log: l, level: logger.Warn}
}

func (q *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *q
	cp.level = level
	return &cp
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

func (q *queryLogger) printf(ctx context.Context, min logger.LogLevel, level slog.Level, msg string, args []interface{}) {
	if q.level >= min {
		q.log.Log(ctx, level, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		level slog.Level
		msg   string
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && q.level >= logger.Error:
		level, msg = slog.LevelError, "query failed"
	case elapsed > slowQuery && q.level >= logger.Warn:
		level, msg = slog.LevelWarn, "slow query"
	case q.level >= logger.Info:
		level, msg = slog.LevelInfo, "query"
	default:
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	q.log.LogAttrs(ctx, level, msg, attrs...)
}
