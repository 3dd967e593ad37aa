package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's log interface onto the request-scoped zap logger so
// query logs carry trace and request fields.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	skipNotFound  bool
}

func NewGormLogger(opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{
		level:         gormlogger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type GormLoggerOption func(*GormLogger)

func WithLogLevel(level gormlogger.LogLevel) GormLoggerOption {
	return func(l *GormLogger) { l.level = level }
}

func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slowThreshold = threshold }
}

func WithSkipNotFound() GormLoggerOption {
	return func(l *GormLogger) { l.skipNotFound = true }
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Info, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Warn, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Error, msg, data)
}

func (l *GormLogger) emit(ctx context.Context, level gormlogger.LogLevel, msg string, data []interface{}) {
	if l.level < level {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	log := FromContext(ctx)
	switch level {
	case gormlogger.Error:
		log.Error(msg, fields...)
	case gormlogger.Warn:
		log.Warn(msg, fields...)
	default:
		log.Info(msg, fields...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	notFound := errors.Is(err, gormlogger.ErrRecordNotFound)
	switch {
	case err != nil && l.level >= gormlogger.Error && !(notFound && l.skipNotFound):
		l.query(ctx, fc, elapsed, err, zapcore.ErrorLevel)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.query(ctx, fc, elapsed, nil, zapcore.WarnLevel)
	case l.level >= gormlogger.Info:
		l.query(ctx, fc, elapsed, nil, zapcore.DebugLevel)
	}
}

// ParamsFilter drops bound values so customer data never reaches query logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) query(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level zapcore.Level) {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if entry := FromContext(ctx).Check(level, "gorm.query"); entry != nil {
		entry.Write(fields...)
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
