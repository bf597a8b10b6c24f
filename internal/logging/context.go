package logging

import (
	"context"
)

type contextKey int

const (
	pauseIDKey contextKey = iota
	cycleIDKey
	loggerKey
)

// WithPauseID returns a context carrying the given collection pause ID.
func WithPauseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pauseIDKey, id)
}

// PauseIDFrom extracts the pause ID from the context, if any.
func PauseIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(pauseIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCycleID returns a context carrying the given concurrent cycle ID.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFrom extracts the cycle ID from the context, if any.
func CycleIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns a logger derived from the context. IDs stored on the
// context are applied to the returned logger.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerKey).(*Logger)
	if !ok {
		l = Global()
	}
	if id := PauseIDFrom(ctx); id != "" {
		l = l.WithPauseID(id)
	}
	if id := CycleIDFrom(ctx); id != "" {
		l = l.WithCycleID(id)
	}
	return l
}
