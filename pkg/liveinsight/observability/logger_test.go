package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds site_key and session_id", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "abc123", "sess-1")
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "abc123", record["site_key"])
		assert.Equal(t, "sess-1", record["session_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "abc123", "sess-1"))
	})
}

func TestLogDeliveryExhausted(t *testing.T) {
	t.Run("logs at ERROR with batch size and attempts", func(t *testing.T) {
		h := newTestHandler()
		LogDeliveryExhausted(slog.New(h), 7, 3, errors.New("HTTP 500"))

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, float64(7), record["batch_size"])
		assert.Equal(t, float64(3), record["attempts"])
		assert.Equal(t, "HTTP 500", record["error"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogDeliveryExhausted(nil, 1, 1, errors.New("x"))
		})
	})
}

func TestLogDeliveryRetry_SanitizesError(t *testing.T) {
	h := newTestHandler()
	LogDeliveryRetry(slog.New(h), 1, errors.New("fail\r\ninjected: yes"), 10*time.Millisecond)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	msg, ok := record["error"].(string)
	require.True(t, ok)
	assert.NotContains(t, msg, "\r")
	assert.NotContains(t, msg, "\n")
	assert.True(t, strings.HasPrefix(msg, "fail  injected"))
}

func TestLogTokenFetchFailed(t *testing.T) {
	h := newTestHandler()
	LogTokenFetchFailed(slog.New(h), nil)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "failed to get CSRF token", record["msg"])
	assert.Equal(t, "Unknown error", record["error"])
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogInitialized(nil, true)
		LogBatchSent(nil, 1, 1, 1)
		LogDeliveryRetry(nil, 1, errors.New("x"), time.Millisecond)
		LogBatchDropped(nil, 1, "full")
		LogEventDropped(nil, "bad", errors.New("x"))
		LogTokenFetchFailed(nil, errors.New("x"))
		LogBeaconFailed(nil, "page_exit", errors.New("x"))
		LogStorageError(nil, "get", "k", errors.New("x"))
		LogInitFailed(nil, errors.New("x"))
		LogAlreadyInitialized(nil)
		LogNotInitialized(nil, "track")
		LogReservedDropped(nil, "click", []string{"site_key"})
	})
}

func TestLogReservedDropped(t *testing.T) {
	t.Run("logs keys at DEBUG", func(t *testing.T) {
		h := newTestHandler()
		LogReservedDropped(slog.New(h), "click", []string{"site_key", "user_id"})

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "click", record["event_type"])
		assert.Equal(t, []any{"site_key", "user_id"}, record["keys"])
	})

	t.Run("no keys logs nothing", func(t *testing.T) {
		h := newTestHandler()
		LogReservedDropped(slog.New(h), "click", nil)
		assert.Nil(t, h.getLastRecord())
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(5))
}
