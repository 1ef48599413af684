package liveinsight

import (
	"time"
)

// Default tracker settings.
const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = time.Second
	DefaultBatchSize      = 10
	DefaultFlushInterval  = 5 * time.Second
)

// Settings are the per-Init tracker overrides. Zero fields keep the
// defaults; HeartbeatInterval stays disabled unless set.
type Settings struct {
	// SessionTimeout is the inactivity window after which a new session starts.
	SessionTimeout time.Duration

	// RetryAttempts is the total number of delivery attempts per batch.
	RetryAttempts int

	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration

	// BatchSize is both the flush threshold and the maximum batch length.
	BatchSize int

	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration

	// HeartbeatInterval enqueues a heartbeat event this often. Zero disables it.
	HeartbeatInterval time.Duration
}

// DefaultSettings returns the tracker defaults.
func DefaultSettings() Settings {
	return Settings{
		SessionTimeout: DefaultSessionTimeout,
		RetryAttempts:  DefaultRetryAttempts,
		RetryDelay:     DefaultRetryDelay,
		BatchSize:      DefaultBatchSize,
		FlushInterval:  DefaultFlushInterval,
	}
}

// merge overlays the non-zero fields of s onto the defaults.
func (s Settings) merge() Settings {
	out := DefaultSettings()
	if s.SessionTimeout > 0 {
		out.SessionTimeout = s.SessionTimeout
	}
	if s.RetryAttempts > 0 {
		out.RetryAttempts = s.RetryAttempts
	}
	if s.RetryDelay > 0 {
		out.RetryDelay = s.RetryDelay
	}
	if s.BatchSize > 0 {
		out.BatchSize = s.BatchSize
	}
	if s.FlushInterval > 0 {
		out.FlushInterval = s.FlushInterval
	}
	if s.HeartbeatInterval > 0 {
		out.HeartbeatInterval = s.HeartbeatInterval
	}
	return out
}
