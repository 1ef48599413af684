package config

import (
	"github.com/randalmurphal/liveinsight/pkg/liveinsight"
)

// Recognised tracker setting keys. Anything else in the map is ignored.
const (
	KeySessionTimeout    = "sessionTimeout"
	KeyRetryAttempts     = "retryAttempts"
	KeyRetryDelay        = "retryDelay"
	KeyBatchSize         = "batchSize"
	KeyFlushInterval     = "flushInterval"
	KeyHeartbeatInterval = "heartbeatInterval"
)

// Settings extracts the tracker overrides from cfg. Durations are read with
// Millis; missing or malformed keys leave the zero value, which the client
// replaces with its default.
func Settings(cfg Config) liveinsight.Settings {
	return liveinsight.Settings{
		SessionTimeout:    cfg.Millis(KeySessionTimeout, 0),
		RetryAttempts:     cfg.Int(KeyRetryAttempts, 0),
		RetryDelay:        cfg.Millis(KeyRetryDelay, 0),
		BatchSize:         cfg.Int(KeyBatchSize, 0),
		FlushInterval:     cfg.Millis(KeyFlushInterval, 0),
		HeartbeatInterval: cfg.Millis(KeyHeartbeatInterval, 0),
	}
}
