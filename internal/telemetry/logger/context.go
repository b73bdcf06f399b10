package logger

import "context"

type contextKey string

const (
	loggerKey   contextKey = "snapbridge.logger"
	snapshotKey contextKey = "snapbridge.snapshot"
)

type snapshotRef struct {
	sessionID string
	sequence  int64
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithSnapshot records which snapshot the context is handling.
func WithSnapshot(ctx context.Context, sessionID string, sequence int64) context.Context {
	return context.WithValue(ctx, snapshotKey, snapshotRef{sessionID: sessionID, sequence: sequence})
}

// SnapshotFromContext returns the snapshot recorded by WithSnapshot.
func SnapshotFromContext(ctx context.Context) (sessionID string, sequence int64, ok bool) {
	ref, ok := ctx.Value(snapshotKey).(snapshotRef)
	if !ok {
		return "", 0, false
	}
	return ref.sessionID, ref.sequence, true
}

// L is a shorthand for FromContext that also enriches the logger with the
// snapshot session id and sequence number from the context.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if sessionID, seq, ok := SnapshotFromContext(ctx); ok {
		l = l.With("session_id", sessionID, "sequence", seq)
	}
	return l
}
