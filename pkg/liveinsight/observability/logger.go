// Package observability provides logging, metrics and tracing for the
// liveinsight client.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Log-input sanitisation for caller- or server-controlled strings
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds tracker identity to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "abc123", "5f0c...")
//	enriched.Info("flushing") // includes site_key and session_id
func EnrichLogger(logger *slog.Logger, siteKey, sessionID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("site_key", siteKey),
		slog.String("session_id", sessionID),
	)
}

// LogInitialized logs successful client initialisation. logger is expected
// to come from EnrichLogger, which already carries session_id.
func LogInitialized(logger *slog.Logger, resumed bool) {
	if logger == nil {
		return
	}
	logger.Info("liveinsight initialized",
		slog.Bool("resumed_session", resumed),
	)
}

// LogInitFailed logs a rejected Init.
func LogInitFailed(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("liveinsight init failed",
		slog.String("error", SanitizeError(err)),
	)
}

// LogAlreadyInitialized logs a repeated Init on the running client's logger.
func LogAlreadyInitialized(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Warn("liveinsight already initialized")
}

// LogNotInitialized logs a call made before Init or after Close.
func LogNotInitialized(logger *slog.Logger, op string) {
	if logger == nil {
		return
	}
	logger.Warn("liveinsight not initialized",
		slog.String("operation", op),
	)
}

// LogReservedDropped logs caller properties discarded because they collide
// with identity fields.
func LogReservedDropped(logger *slog.Logger, eventType string, keys []string) {
	if logger == nil || len(keys) == 0 {
		return
	}
	logger.Debug("reserved properties dropped",
		slog.String("event_type", eventType),
		slog.Any("keys", keys),
	)
}

// LogBatchSent logs a delivered batch.
func LogBatchSent(logger *slog.Logger, size, attempts int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("events sent",
		slog.Int("batch_size", size),
		slog.Int("attempts", attempts),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDeliveryRetry logs a failed attempt that will be retried.
func LogDeliveryRetry(logger *slog.Logger, attempt int, err error, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("failed to send events",
		slog.Int("attempt", attempt),
		slog.String("error", SanitizeError(err)),
		slog.Duration("retry_in", wait),
	)
}

// LogDeliveryExhausted logs a batch dropped after its last attempt.
func LogDeliveryExhausted(logger *slog.Logger, size, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("failed to send events after retries, dropping batch",
		slog.Int("batch_size", size),
		slog.Int("attempts", attempts),
		slog.String("error", SanitizeError(err)),
	)
}

// LogBatchDropped logs a batch rejected before delivery was attempted.
func LogBatchDropped(logger *slog.Logger, size int, reason string) {
	if logger == nil {
		return
	}
	logger.Error("dropping batch",
		slog.Int("batch_size", size),
		slog.String("reason", reason),
	)
}

// LogEventDropped logs one event removed from a batch because it could not
// be encoded.
func LogEventDropped(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("dropping unencodable event",
		slog.String("event_type", Sanitize(eventType)),
		slog.String("error", SanitizeError(err)),
	)
}

// LogTokenFetchFailed logs a CSRF token failure (non-fatal).
func LogTokenFetchFailed(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("failed to get CSRF token",
		slog.String("error", SanitizeError(err)),
	)
}

// LogBeaconFailed logs a best-effort unload send that failed.
func LogBeaconFailed(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Debug("beacon failed",
		slog.String("event_type", eventType),
		slog.String("error", SanitizeError(err)),
	)
}

// LogStorageError logs a persistence failure (non-fatal).
func LogStorageError(logger *slog.Logger, op, key string, err error) {
	if logger == nil {
		return
	}
	logger.Debug("storage unavailable",
		slog.String("operation", op),
		slog.String("key", key),
		slog.String("error", SanitizeError(err)),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
