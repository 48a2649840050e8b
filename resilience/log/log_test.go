//go:build unit

package log

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEntry struct {
	level  Level
	msg    string
	fields []Field
}

type capturingLogger struct {
	mu      sync.Mutex
	entries []capturedEntry
}

func (c *capturingLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, capturedEntry{level: level, msg: msg, fields: fields})
}

func (c *capturingLogger) With(_ ...Field) Logger       { return c }
func (c *capturingLogger) WithGroup(_ string) Logger    { return c }
func (c *capturingLogger) Enabled(_ Level) bool         { return true }
func (c *capturingLogger) Sync(_ context.Context) error { return nil }

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for raw, expected := range map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"Error":   LevelError,
	} {
		parsed, err := ParseLevel(raw)
		require.NoError(t, err)
		assert.Equal(t, expected, parsed)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 7}, Int("n", 7))
	assert.Equal(t, Field{Key: "n", Value: int64(7)}, Int64("n", 7))
	assert.Equal(t, Field{Key: "ok", Value: true}, Bool("ok", true))
	assert.Equal(t, Field{Key: "d", Value: time.Second}, Duration("d", time.Second))

	err := errors.New("boom")
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
}

func TestSafeErrorNilLogger(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		SafeError(nil, context.Background(), "ignored", errors.New("boom"))
	})
}

func TestSafeErrorAppendsErrorField(t *testing.T) {
	t.Parallel()

	logger := &capturingLogger{}
	failure := errors.New("boom")

	SafeError(logger, context.Background(), "operation failed", failure, String("component", "worker"))

	require.Len(t, logger.entries, 1)
	entry := logger.entries[0]
	assert.Equal(t, LevelError, entry.level)
	assert.Equal(t, "operation failed", entry.msg)
	require.Len(t, entry.fields, 2)
	assert.Equal(t, "component", entry.fields[0].Key)
	assert.Equal(t, Field{Key: "error", Value: failure}, entry.fields[1])
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	assert.False(t, logger.Enabled(LevelError))
	assert.NoError(t, logger.Sync(context.Background()))
	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.Same(t, logger, logger.WithGroup("group"))
	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelInfo, "dropped")
	})
}

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `line1\nline2`, SanitizeString("line1\nline2"))
	assert.Equal(t, `a\rb\tc`, SanitizeString("a\rb\tc"))
	assert.Equal(t, "clean", SanitizeString("clean"))
}

func TestSanitizeFields(t *testing.T) {
	t.Parallel()

	sanitized := sanitizeFields([]Field{
		String("msg", "evil\ninjection"),
		Int("n", 3),
	})

	require.Len(t, sanitized, 2)
	assert.Equal(t, `evil\ninjection`, sanitized[0].Value)
	assert.Equal(t, 3, sanitized[1].Value)
}
