package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/ctxutil"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// gormLogger routes gorm's warnings, errors and slow queries into the
// process logger. Per-statement tracing is never emitted.
type gormLogger struct {
	log   *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger(log *logger.Logger, slow time.Duration) gormlogger.Interface {
	if slow <= 0 {
		slow = time.Second
	}
	return &gormLogger{log: log, level: gormlogger.Warn, slow: slow}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.log.Info("gorm: "+msg, g.fields(ctx, "args", args)...)
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.log.Warn("gorm: "+msg, g.fields(ctx, "args", args)...)
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.log.Error("gorm: "+msg, g.fields(ctx, "args", args)...)
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		g.log.Error("Query failed", g.fields(ctx, "sql", sql, "rows", rows, "elapsed", elapsed.String(), "error", err)...)
	case elapsed > g.slow && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.log.Warn("Slow query", g.fields(ctx, "sql", sql, "rows", rows, "elapsed", elapsed.String())...)
	}
}

func (g *gormLogger) fields(ctx context.Context, kv ...interface{}) []interface{} {
	return append(ctxutil.GetTraceData(ctx).LogFields(), kv...)
}
