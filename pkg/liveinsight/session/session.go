// Package session resolves the tracker's user and session identity against
// client-side storage.
//
// A session is reused across page loads while now - lastActivity is below
// the timeout. The user identifier is durable and only regenerated when
// storage cannot hold it, in which case a per-load fallback is used.
package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/observability"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
)

// DefaultTimeout is the inactivity window after which a session expires.
const DefaultTimeout = 30 * time.Minute

// Record is the persisted session, stored as JSON under storage.SessionKey.
// Times are epoch milliseconds.
type Record struct {
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"`
	LastActivity int64  `json:"lastActivity"`
	StartTime    int64  `json:"startTime"`
}

// Identity is the resolved result of Resolve.
type Identity struct {
	SessionID string
	UserID    string
	// Resumed is true when an unexpired persisted session was reused.
	Resumed bool
	// StartedAt is when the session began.
	StartedAt time.Time
}

// Manager reads and writes the session record.
type Manager struct {
	store   storage.Store
	timeout time.Duration
	logger  *slog.Logger

	newID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the inactivity window. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIDGenerator replaces the UUID-v4 generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager creates a Manager over store. A nil store behaves as if
// storage were unavailable.
func NewManager(store storage.Store, opts ...Option) *Manager {
	if store == nil {
		store = storage.UnavailableStore{}
	}
	m := &Manager{
		store:   store,
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout returns the configured inactivity window.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Resolve loads or mints the identity for a page load at now and always
// persists the refreshed record.
func (m *Manager) Resolve(now time.Time) Identity {
	nowMs := now.UnixMilli()

	var id Identity
	rec, ok := m.load()
	if ok && rec.SessionID != "" && nowMs-rec.LastActivity < m.timeout.Milliseconds() {
		id = Identity{
			SessionID: rec.SessionID,
			UserID:    rec.UserID,
			Resumed:   true,
			StartedAt: time.UnixMilli(rec.StartTime),
		}
		if id.UserID == "" {
			id.UserID = m.UserID()
		}
		if rec.StartTime == 0 {
			id.StartedAt = now
		}
	} else {
		id = Identity{
			SessionID: m.newID(),
			UserID:    m.UserID(),
			StartedAt: now,
		}
	}

	m.save(Record{
		SessionID:    id.SessionID,
		UserID:       id.UserID,
		LastActivity: nowMs,
		StartTime:    id.StartedAt.UnixMilli(),
	})
	return id
}

// Touch refreshes lastActivity for the stored session matching id.
func (m *Manager) Touch(id Identity, now time.Time) {
	start := id.StartedAt.UnixMilli()
	if rec, ok := m.load(); ok && rec.SessionID == id.SessionID && rec.StartTime != 0 {
		start = rec.StartTime
	}
	m.save(Record{
		SessionID:    id.SessionID,
		UserID:       id.UserID,
		LastActivity: now.UnixMilli(),
		StartTime:    start,
	})
}

// Load returns the persisted record, if any.
func (m *Manager) Load() (Record, bool) {
	return m.load()
}

// UserID returns the durable user identifier, creating and persisting one if
// none exists. When storage is unavailable a "temp_" identifier valid only
// for this page load is returned.
func (m *Manager) UserID() string {
	raw, err := m.store.Get(storage.UserIDKey)
	if err == nil && len(raw) > 0 {
		return string(raw)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		observability.LogStorageError(m.logger, "get", storage.UserIDKey, err)
		return fallbackID()
	}

	id := m.newID()
	if err := m.store.Set(storage.UserIDKey, []byte(id)); err != nil {
		observability.LogStorageError(m.logger, "set", storage.UserIDKey, err)
		return fallbackID()
	}
	return id
}

func (m *Manager) load() (Record, bool) {
	raw, err := m.store.Get(storage.SessionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			observability.LogStorageError(m.logger, "get", storage.SessionKey, err)
		}
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// corrupt record: start over
		return Record{}, false
	}
	return rec, true
}

func (m *Manager) save(rec Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := m.store.Set(storage.SessionKey, raw); err != nil {
		observability.LogStorageError(m.logger, "set", storage.SessionKey, err)
	}
}

// fallbackID returns a non-durable identifier: "temp_" plus nine base36 characters.
func fallbackID() string {
	var b strings.Builder
	b.WriteString("temp_")
	for i := 0; i < 9; i++ {
		b.WriteString(strconv.FormatInt(rand.Int64N(36), 36))
	}
	return b.String()
}

// IsFallbackID reports whether id is a non-durable fallback identifier.
func IsFallbackID(id string) bool {
	return strings.HasPrefix(id, "temp_")
}
