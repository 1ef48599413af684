// Package storage provides client-side persistence for tracker identity
// and token records.
package storage

import (
	"errors"
)

// Store persists small keyed records on the client.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the value stored under key.
	// Returns ErrNotFound if nothing is stored.
	Get(key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Returns nil if key doesn't exist.
	Delete(key string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates no value is stored under the key.
	ErrNotFound = errors.New("storage key not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("storage closed")

	// ErrUnavailable indicates persistence is disabled or full.
	ErrUnavailable = errors.New("storage unavailable")
)

// KeyPrefix namespaces every key the tracker writes.
const KeyPrefix = "liveinsight_"

// Keys used by the tracker.
const (
	UserIDKey    = KeyPrefix + "user_id"
	SessionKey   = KeyPrefix + "session"
	CSRFTokenKey = KeyPrefix + "csrf_token"
)
