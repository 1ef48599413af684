package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight"
)

// EnvPrefix prefixes environment overrides: LI_SITE_KEY, LI_TRACKER_BATCHSIZE.
const EnvPrefix = "LI"

// ClientConfig is the command-line client configuration.
type ClientConfig struct {
	SiteKey  string
	Endpoint string
	APIKey   string
	CSRF     bool
	DataDir  string
	Settings liveinsight.Settings
}

// Load reads configuration with environment > config file > defaults
// precedence. An empty path skips the file.
func Load(path string) (*ClientConfig, error) {
	v := viper.New()

	v.SetDefault("site_key", "")
	v.SetDefault("endpoint", liveinsight.DefaultEndpoint)
	v.SetDefault("api_key", "")
	v.SetDefault("csrf", true)
	v.SetDefault("data_dir", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// the key is a credential: env only
		if v.InConfig("api_key") {
			return nil, fmt.Errorf("api_key not allowed in config files (use %s_API_KEY environment variable)", EnvPrefix)
		}
	}

	cfg := &ClientConfig{
		SiteKey:  v.GetString("site_key"),
		Endpoint: v.GetString("endpoint"),
		APIKey:   v.GetString("api_key"),
		CSRF:     v.GetBool("csrf"),
		DataDir:  v.GetString("data_dir"),
		Settings: Settings(New(trackerValues(v))),
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var settingKeys = []string{
	KeySessionTimeout,
	KeyRetryAttempts,
	KeyRetryDelay,
	KeyBatchSize,
	KeyFlushInterval,
	KeyHeartbeatInterval,
}

// trackerValues collects the tracker section under its camelCase keys
// (viper folds keys to lower case). Numeric strings from the environment
// become ints so Settings reads them the same as file values.
func trackerValues(v *viper.Viper) map[string]any {
	out := make(map[string]any)
	for _, k := range settingKeys {
		raw := v.Get("tracker." + k)
		if raw == nil {
			continue
		}
		if s, ok := raw.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				raw = n
			}
		}
		out[k] = raw
	}
	return out
}

func validate(cfg *ClientConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL, got %q", cfg.Endpoint)
	}
	s := cfg.Settings
	if s.RetryAttempts < 0 || s.BatchSize < 0 {
		return fmt.Errorf("retryAttempts and batchSize must not be negative")
	}
	for name, d := range map[string]time.Duration{
		KeySessionTimeout:    s.SessionTimeout,
		KeyRetryDelay:        s.RetryDelay,
		KeyFlushInterval:     s.FlushInterval,
		KeyHeartbeatInterval: s.HeartbeatInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, d)
		}
	}
	return nil
}
