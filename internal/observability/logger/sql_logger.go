package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// SQLLogger routes GORM's logging through the context zap logger. Bound
// parameters are never logged: nearly every query here carries a phone
// number. Record-not-found is not an error either, the repositories treat
// it as plain absence.
type SQLLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

// NewSQLLogger returns a logger that reports errors and slow queries. A
// non-positive threshold falls back to the default.
func NewSQLLogger(slow time.Duration) *SQLLogger {
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	return &SQLLogger{level: gormlogger.Warn, slow: slow}
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *SQLLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *SQLLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Sugar().Errorf(msg, data...)
	}
}

func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		FromContext(ctx).Error("db query failed", queryFields(sql, rows, elapsed, err)...)
	case elapsed >= l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		FromContext(ctx).Warn("slow db query", queryFields(sql, rows, elapsed, nil)...)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		FromContext(ctx).Debug("db query", queryFields(sql, rows, elapsed, nil)...)
	}
}

// ParamsFilter drops bound values so identities never reach the logs.
func (l *SQLLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

func queryFields(sql string, rows int64, elapsed time.Duration, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("verb", sqlVerb(sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

// sqlVerb returns the leading statement keyword, e.g. INSERT.
func sqlVerb(sql string) string {
	for _, token := range strings.Fields(sql) {
		return strings.ToUpper(strings.Trim(token, "(;"))
	}
	return ""
}

var _ gormlogger.Interface = (*SQLLogger)(nil)
