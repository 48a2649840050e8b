package log

import "context"

// NopLogger discards every log record. It is the default wherever a nil
// Logger is accepted.
type NopLogger struct{}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &NopLogger{}
}

// Log discards the record.
func (l *NopLogger) Log(_ context.Context, _ Level, _ string, _ ...Field) {}

// With returns the receiver unchanged.
//
//nolint:ireturn
func (l *NopLogger) With(_ ...Field) Logger {
	return l
}

// WithGroup returns the receiver unchanged.
//
//nolint:ireturn
func (l *NopLogger) WithGroup(_ string) Logger {
	return l
}

// Enabled reports false for every level.
func (l *NopLogger) Enabled(_ Level) bool {
	return false
}

// Sync has nothing to flush.
func (l *NopLogger) Sync(_ context.Context) error { return nil }
