package liveinsight

import (
	"errors"
)

// Sentinel errors for initialisation.
var (
	// ErrSiteKeyRequired indicates Init was called with an empty site key.
	ErrSiteKeyRequired = errors.New("site key is required")

	// ErrAlreadyInitialized indicates Init was called on a running client.
	// The existing session is kept.
	ErrAlreadyInitialized = errors.New("already initialized")
)

// Sentinel errors for tracking.
var (
	// ErrNotInitialized indicates a track call before Init or after Close.
	ErrNotInitialized = errors.New("not initialized")

	// ErrEventTypeRequired indicates Track was called with an empty type.
	ErrEventTypeRequired = errors.New("event type is required")

	// ErrInvalidProperties indicates a Track property that cannot be
	// JSON-encoded. The event is not queued.
	ErrInvalidProperties = errors.New("invalid event properties")
)
