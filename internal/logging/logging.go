// Package logging wraps go.uber.org/zap with the structured field set
// the scheduler needs for its mandatory one-line-per-skip logging.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Interface is the logging surface the rest of the crawler depends on,
// so tests can substitute a fake (such as NewNop) for the production
// logger. Its methods take zap fields.
type Interface interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Interface
	Sync() error
}

// Logger is the zap-backed Interface implementation used in production.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger. debug selects zap's development config (console
// encoder, debug level, caller info); otherwise the production JSON
// config is used.
func New(debug bool) (*Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop returns a Logger that discards everything, for tests that need
// an Interface but don't care about log output.
func NewNop() *Logger { return &Logger{z: zap.NewNop()} }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// With returns a child Logger carrying the given fields on every
// subsequent call.
func (l *Logger) With(fields ...zap.Field) Interface {
	return &Logger{z: l.z.With(fields...)}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Field name constants shared across every skip-reason log line, so
// callers don't repeat string literals that must all agree.
const (
	FieldURL        = "url"
	FieldHost       = "host"
	FieldSkipReason = "skip_reason"
	FieldStatus     = "status"
)

// TruncateURL shortens a URL string to maxLen characters for logging so
// a pathological query string doesn't blow up a skip-reason log line.
func TruncateURL(u string, maxLen int) string {
	if len(u) <= maxLen {
		return u
	}
	return u[:maxLen]
}
