// Package csrf fetches and caches the anti-CSRF token attached to event
// deliveries.
//
// Tokens are cached in storage with their fetch time and reused while
// younger than the TTL. A failed fetch never blocks delivery: the caller
// gets an empty token and the request goes out without the header.
package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/observability"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/transport"
)

// DefaultTTL is how long a cached token is reused (3600000 ms).
const DefaultTTL = time.Hour

// Path is appended to the collector base URL to fetch a token.
const Path = "/csrf-token"

// Cached is the stored token record, JSON under storage.CSRFTokenKey.
type Cached struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

type tokenRequest struct {
	SessionID string `json:"session_id"`
}

type tokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// Manager resolves the token for a session.
type Manager struct {
	store     storage.Store
	transport transport.Transport
	url       string
	apiKey    string
	ttl       time.Duration

	now     func() time.Time
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithAPIKey sends the API key with token requests.
func WithAPIKey(key string) Option {
	return func(m *Manager) { m.apiKey = key }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger for fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the recorder for fetch outcomes.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// NewManager creates a Manager that fetches from baseURL + Path.
func NewManager(store storage.Store, t transport.Transport, baseURL string, opts ...Option) *Manager {
	if store == nil {
		store = storage.UnavailableStore{}
	}
	m := &Manager{
		store:     store,
		transport: t,
		url:       strings.TrimRight(baseURL, "/") + Path,
		ttl:       DefaultTTL,
		now:       time.Now,
		metrics:   observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid token for sessionID, or "" if none can be obtained.
func (m *Manager) Token(ctx context.Context, sessionID string) string {
	now := m.now()
	if token := m.fresh(now); token != "" {
		return token
	}

	token, err := m.fetch(ctx, sessionID)
	m.metrics.RecordTokenFetch(ctx, err)
	if err != nil {
		observability.LogTokenFetchFailed(m.logger, err)
		return ""
	}

	raw, err := json.Marshal(Cached{Value: token, Timestamp: now.UnixMilli()})
	if err == nil {
		if err := m.store.Set(storage.CSRFTokenKey, raw); err != nil {
			observability.LogStorageError(m.logger, "set", storage.CSRFTokenKey, err)
		}
	}
	return token
}

// CachedToken returns the cached token if it is still within the TTL, or "".
// It never fetches.
func (m *Manager) CachedToken() string {
	return m.fresh(m.now())
}

func (m *Manager) fresh(now time.Time) string {
	if cached, ok := m.cached(); ok && now.UnixMilli()-cached.Timestamp < m.ttl.Milliseconds() {
		return cached.Value
	}
	return ""
}

// Invalidate drops the cached token.
func (m *Manager) Invalidate() {
	if err := m.store.Delete(storage.CSRFTokenKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		observability.LogStorageError(m.logger, "delete", storage.CSRFTokenKey, err)
	}
}

func (m *Manager) cached() (Cached, bool) {
	raw, err := m.store.Get(storage.CSRFTokenKey)
	if err != nil {
		return Cached{}, false
	}
	var c Cached
	if err := json.Unmarshal(raw, &c); err != nil || c.Value == "" {
		return Cached{}, false
	}
	return c, true
}

func (m *Manager) fetch(ctx context.Context, sessionID string) (string, error) {
	body, err := json.Marshal(tokenRequest{SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	resp, err := m.transport.Do(ctx, transport.Request{
		URL:       m.url,
		Body:      body,
		SessionID: sessionID,
		APIKey:    m.apiKey,
	})
	if err != nil {
		return "", err
	}
	if err := transport.StatusError(m.url, resp); err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.CSRFToken == "" {
		return "", errors.New("token response missing csrf_token")
	}
	return tr.CSRFToken, nil
}
