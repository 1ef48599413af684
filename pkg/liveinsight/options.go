package liveinsight

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/observability"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/transport"
)

// DefaultEndpoint is the collector base URL used when none is configured.
const DefaultEndpoint = "http://localhost:8080/api"

// defaultBatchBuffer is how many batches may wait for the delivery worker.
const defaultBatchBuffer = 32

// clientConfig holds everything injected through Options.
type clientConfig struct {
	store     storage.Store
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	transport transport.Transport

	httpClient *http.Client
	legacy     http.RoundTripper
	useLegacy  bool

	endpoint    string
	apiKey      string
	csrf        bool
	now         func() time.Time
	page        event.Page
	batchBuffer int
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		logger:      slog.Default(),
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
		endpoint:    DefaultEndpoint,
		csrf:        true,
		now:         time.Now,
		batchBuffer: defaultBatchBuffer,
	}
}

// selectTransport picks the explicit transport if set, otherwise the HTTP
// path when a client is configured and the legacy path when not.
func (c clientConfig) selectTransport() transport.Transport {
	if c.transport != nil {
		return c.transport
	}
	client := c.httpClient
	if client == nil && !c.useLegacy {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return transport.Select(client, c.legacy)
}

// Option configures a Client.
type Option func(*clientConfig)

// WithStore sets the persistence used for the user id, session record and
// token cache. Default: an in-memory store.
func WithStore(s storage.Store) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithLogger sets the structured logger. Default: slog.Default(). A nil
// logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
// Default: NoopMetrics.
//
// Example:
//
//	client := liveinsight.New(liveinsight.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(c *clientConfig) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithSpanManager sets the tracer used for delivery spans.
func WithSpanManager(m observability.SpanManager) Option {
	return func(c *clientConfig) {
		if m != nil {
			c.spans = m
		}
	}
}

// WithHTTPClient sends through client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
		c.useLegacy = false
	}
}

// WithLegacyTransport sends through a bare round tripper instead of an
// http.Client. A nil rt uses http.DefaultTransport.
func WithLegacyTransport(rt http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.legacy = rt
		c.httpClient = nil
		c.useLegacy = true
	}
}

// WithTransport replaces the transport entirely.
func WithTransport(t transport.Transport) Option {
	return func(c *clientConfig) {
		c.transport = t
	}
}

// WithEndpoint sets the collector base URL. Events go to <base>/events and
// tokens come from <base>/csrf-token.
func WithEndpoint(baseURL string) Option {
	return func(c *clientConfig) {
		if baseURL != "" {
			c.endpoint = baseURL
		}
	}
}

// WithAPIKey sends key as X-API-Key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithCSRF toggles the anti-CSRF token. Default: on.
func WithCSRF(enabled bool) Option {
	return func(c *clientConfig) {
		c.csrf = enabled
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPage sets the page the client starts on.
func WithPage(p event.Page) Option {
	return func(c *clientConfig) {
		c.page = p
	}
}

// WithBatchBuffer sets how many batches may queue for delivery before new
// ones are dropped. Default: 32.
func WithBatchBuffer(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.batchBuffer = n
		}
	}
}
