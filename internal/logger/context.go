package logger

import (
	"context"
	"sync"
)

type contextKey struct{}

var loggerKey = contextKey{}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// SetDefaultLogger sets the process-wide fallback logger returned by
// FromContext when the context carries no logger.
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the process-wide logger, initializing one with
// DefaultConfig on first use.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from the context, falling back to the
// default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*Logger); ok {
			return l
		}
	}
	return Default()
}

// CtxInfo logs an info message using the context's logger.
func CtxInfo(ctx context.Context, msg string, fields ...Fields) {
	l := FromContext(ctx)
	if len(fields) > 0 {
		l = l.WithFields(fields[0])
	}
	l.Info(msg)
}

// CtxWarn logs a warning message using the context's logger.
func CtxWarn(ctx context.Context, msg string, fields ...Fields) {
	l := FromContext(ctx)
	if len(fields) > 0 {
		l = l.WithFields(fields[0])
	}
	l.Warn(msg)
}

// CtxError logs an error message using the context's logger.
func CtxError(ctx context.Context, msg string, err error, fields ...Fields) {
	l := FromContext(ctx)
	if err != nil {
		l = l.WithError(err)
	}
	if len(fields) > 0 {
		l = l.WithFields(fields[0])
	}
	l.Error(msg)
}

// CtxDebug logs a debug message using the context's logger.
func CtxDebug(ctx context.Context, msg string, fields ...Fields) {
	l := FromContext(ctx)
	if len(fields) > 0 {
		l = l.WithFields(fields[0])
	}
	l.Debug(msg)
}
