package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultMaxSQLLength bounds logged statements. Webhook receipts and job rows
// inline the raw channel payload into the INSERT text.
const DefaultMaxSQLLength = 2048

// DefaultQuietTables are polled by the job processor and scheduler on every
// tick. Their successful statements are not logged at info level.
var DefaultQuietTables = []string{"reconcile_jobs", "sync_batches"}

// GormConfig tunes the statement logger
type GormConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// MaxSQLLength truncates statement text; zero keeps it whole
	MaxSQLLength int
	// QuietTables suppresses routine statements touching these tables
	QuietTables []string
}

// DefaultGormConfig returns the settings used by the server at level
func DefaultGormConfig(level gormlogger.LogLevel) GormConfig {
	return GormConfig{
		Level:         level,
		SlowThreshold: 200 * time.Millisecond,
		MaxSQLLength:  DefaultMaxSQLLength,
		QuietTables:   DefaultQuietTables,
	}
}

// GormLogger routes gorm statements to zap with the request, integration and
// trace ids of the statement context. Lookups that find nothing and unique
// violations are outcomes the repositories handle: the identity map binds
// mappings by insert and treats a duplicate key as a lost race. Both are
// logged at debug instead of error.
type GormLogger struct {
	logger *zap.Logger
	cfg    GormConfig
}

// NewGormLogger creates a gorm logger named "gorm" under zapLogger
func NewGormLogger(zapLogger *zap.Logger, cfg GormConfig) *GormLogger {
	return &GormLogger{logger: zapLogger.Named("gorm"), cfg: cfg}
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.cfg.Level = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Info {
		l.logger.With(contextFields(ctx)...).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Warn {
		l.logger.With(contextFields(ctx)...).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Error {
		l.logger.With(contextFields(ctx)...).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold

	// fc renders the statement with its arguments, so skip it when nothing
	// will be written
	if err == nil && !slow && l.cfg.Level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := append(contextFields(ctx),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", l.truncate(sql)),
	)

	switch {
	case err != nil && expectedError(err):
		if l.cfg.Level >= gormlogger.Info {
			l.logger.Debug("SQL outcome handled by caller", append(fields, zap.Error(err))...)
		}
	case err != nil && l.cfg.Level >= gormlogger.Error:
		l.logger.Error("SQL error", append(fields, zap.Error(err))...)
	case slow && l.cfg.Level >= gormlogger.Warn:
		l.logger.Warn("Slow SQL", append(fields, zap.Duration("threshold", l.cfg.SlowThreshold))...)
	case err == nil && l.cfg.Level >= gormlogger.Info && !l.quiet(sql):
		l.logger.Debug("SQL", fields...)
	}
}

func expectedError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)
}

func (l *GormLogger) truncate(sql string) string {
	if l.cfg.MaxSQLLength <= 0 || len(sql) <= l.cfg.MaxSQLLength {
		return sql
	}
	return sql[:l.cfg.MaxSQLLength] + "...(truncated)"
}

func (l *GormLogger) quiet(sql string) bool {
	for _, table := range l.cfg.QuietTables {
		if strings.Contains(sql, `"`+table+`"`) || strings.Contains(sql, "`"+table+"`") {
			return true
		}
	}
	return false
}

func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetIntegrationID(ctx); id != "" {
		fields = append(fields, zap.String("integration_id", id))
	}
	if id := GetTraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}

// MapGormLogLevel maps a log level name to the GORM level. Debug logs every
// statement; anything unrecognized keeps warnings only.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
