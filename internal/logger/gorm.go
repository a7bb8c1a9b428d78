package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger sends gorm output to the context logger, tagged with the
// component that owns the database.
type GormLogger struct {
	component string
	level     gormlogger.LogLevel
	slow      time.Duration
}

// NewGormLogger maps our level names onto gorm's: debug logs every statement,
// info and warn log slow and failed ones, error logs failures only.
func NewGormLogger(component, level string, slow time.Duration) *GormLogger {
	if slow <= 0 {
		slow = defaultSlowQuery
	}

	var gl gormlogger.LogLevel
	switch strings.ToLower(level) {
	case "debug":
		gl = gormlogger.Info
	case "error":
		gl = gormlogger.Error
	case "silent", "disabled":
		gl = gormlogger.Silent
	default:
		gl = gormlogger.Warn
	}

	return &GormLogger{component: component, level: gl, slow: slow}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *l
	out.level = level
	return &out
}

func (l *GormLogger) event(ctx context.Context, level gormlogger.LogLevel) *zerolog.Event {
	if l.level < level {
		return nil
	}
	var e *zerolog.Event
	switch level {
	case gormlogger.Error:
		e = Error(ctx)
	case gormlogger.Warn:
		e = Warn(ctx)
	default:
		e = Debug(ctx)
	}
	return e.Str("component", l.component)
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.event(ctx, gormlogger.Info).Msgf(msg, data...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.event(ctx, gormlogger.Warn).Msgf(msg, data...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.event(ctx, gormlogger.Error).Msgf(msg, data...)
}

// Trace reports one statement. A missing record is a normal lookup result and
// is not treated as a failure.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	var (
		e   *zerolog.Event
		msg string
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		e, msg = l.event(ctx, gormlogger.Error), "db statement failed"
		if e != nil {
			e = e.Err(err)
		}
	case elapsed > l.slow:
		e, msg = l.event(ctx, gormlogger.Warn), "slow db statement"
	default:
		e, msg = l.event(ctx, gormlogger.Info), "db statement"
	}
	if e == nil {
		return
	}

	sql, rows := fc()
	e.Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg(msg)
}
