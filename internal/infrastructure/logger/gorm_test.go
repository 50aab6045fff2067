package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func newObservedGormLogger(cfg GormConfig) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), cfg), recorded
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("statement at info level carries context ids", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Info))

		ctx := WithIntegrationID(WithRequestID(spanContext(t), "req-9"), "integ-1")
		gl.Trace(ctx, time.Now(), sqlFn(`SELECT * FROM "orders" WHERE "id" = 7`, 1), nil)

		entries := recorded.FilterMessage("SQL").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, `SELECT * FROM "orders" WHERE "id" = 7`, fields["sql"])
		assert.Equal(t, "req-9", fields["request_id"])
		assert.Equal(t, "integ-1", fields["integration_id"])
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	})

	t.Run("lost mapping races and empty lookups are not errors", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Warn))

		gl.Trace(context.Background(), time.Now(), sqlFn(`INSERT INTO "platform_mappings"`, 0), gorm.ErrDuplicatedKey)
		gl.Trace(context.Background(), time.Now(), sqlFn(`SELECT * FROM "customers"`, 0), gorm.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())

		gl.Trace(context.Background(), time.Now(), sqlFn(`UPDATE "orders"`, 0), errors.New("deadlock detected"))
		entries := recorded.FilterMessage("SQL error").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "deadlock detected", entries[0].ContextMap()["error"])
	})

	t.Run("expected outcomes stay visible at debug", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Info))

		gl.Trace(context.Background(), time.Now(), sqlFn(`INSERT INTO "platform_mappings"`, 0), gorm.ErrDuplicatedKey)
		entries := recorded.FilterMessage("SQL outcome handled by caller").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})

	t.Run("slow statement warns with the threshold", func(t *testing.T) {
		cfg := DefaultGormConfig(gormlogger.Warn)
		cfg.SlowThreshold = 10 * time.Millisecond
		gl, recorded := newObservedGormLogger(cfg)

		gl.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn(`UPDATE "reconcile_jobs"`, 3), nil)
		entries := recorded.FilterMessage("Slow SQL").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, 10*time.Millisecond, entries[0].ContextMap()["threshold"])
	})

	t.Run("job queue polling is quiet", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Info))

		gl.Trace(context.Background(), time.Now(), sqlFn(`SELECT * FROM "reconcile_jobs" WHERE status = 'pending'`, 0), nil)
		gl.Trace(context.Background(), time.Now(), sqlFn(`SELECT * FROM "sync_batches"`, 0), nil)
		assert.Zero(t, recorded.Len())

		gl.Trace(context.Background(), time.Now(), sqlFn(`UPDATE "reconcile_jobs"`, 0), errors.New("conn reset"))
		assert.Equal(t, 1, recorded.FilterMessage("SQL error").Len())
	})

	t.Run("raw payload inserts are truncated", func(t *testing.T) {
		cfg := DefaultGormConfig(gormlogger.Info)
		cfg.MaxSQLLength = 32
		gl, recorded := newObservedGormLogger(cfg)

		payload := `INSERT INTO "webhook_receipts" (payload) VALUES ('` + strings.Repeat("x", 500) + `')`
		gl.Trace(context.Background(), time.Now(), sqlFn(payload, 1), nil)

		entries := recorded.FilterMessage("SQL").All()
		require.Len(t, entries, 1)
		assert.Equal(t, payload[:32]+"...(truncated)", entries[0].ContextMap()["sql"])
	})

	t.Run("statement is not rendered when nothing will be logged", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Warn))

		rendered := false
		gl.Trace(context.Background(), time.Now(), func() (string, int64) {
			rendered = true
			return "SELECT 1", 1
		}, nil)
		assert.False(t, rendered)
		assert.Zero(t, recorded.Len())
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Info))

		gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sqlFn("SELECT", 0), errors.New("x"))
		assert.Zero(t, recorded.Len())
	})
}

func TestGormLogger_Messages(t *testing.T) {
	gl, recorded := newObservedGormLogger(DefaultGormConfig(gormlogger.Warn))
	ctx := WithRequestID(context.Background(), "req-2")

	gl.Info(ctx, "migrated %d tables", 4)
	gl.Warn(ctx, "replacing callback %s", "otelgorm")

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "replacing callback otelgorm", entries[0].Message)
	assert.Equal(t, "req-2", entries[0].ContextMap()["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("whatever"))
}
