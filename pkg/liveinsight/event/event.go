// Package event defines the tracker event value and the FIFO queue that
// batches events for delivery.
//
// Events are immutable once created: the property map is copied on the way
// in and on the way out, and reserved identity fields cannot be overridden
// by caller-supplied properties.
package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Well-known event types.
const (
	TypePageView    = "page_view"
	TypeClick       = "click"
	TypeConversion  = "conversion"
	TypeSessionEnd  = "session_end"
	TypePageExit    = "page_exit"
	TypePageHidden  = "page_hidden"
	TypePageVisible = "page_visible"
	TypeHeartbeat   = "heartbeat"
)

// Reserved field names. Caller properties using these keys are dropped.
const (
	FieldEventType = "event_type"
	FieldPageURL   = "page_url"
	FieldTimestamp = "timestamp"
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldSiteKey   = "site_key"
)

var reserved = map[string]struct{}{
	FieldEventType: {},
	FieldPageURL:   {},
	FieldTimestamp: {},
	FieldSessionID: {},
	FieldUserID:    {},
	FieldSiteKey:   {},
}

// IsReserved reports whether key names an identity or timestamp field.
func IsReserved(key string) bool {
	_, ok := reserved[key]
	return ok
}

// CheckProperties returns an error naming the first property, in key order,
// whose value cannot be JSON-encoded (NaN, channels, functions). Reserved
// keys are skipped since New drops them.
func CheckProperties(props map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(props)) {
		if IsReserved(k) {
			continue
		}
		if _, err := json.Marshal(props[k]); err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
	}
	return nil
}

// Identity is the session/user/site triple stamped on every event.
type Identity struct {
	SessionID string
	UserID    string
	SiteKey   string
}

// Event is a single tracked occurrence.
type Event struct {
	eventType  string
	pageURL    string
	timestamp  int64 // epoch milliseconds
	identity   Identity
	properties map[string]any
}

// New creates an event. Properties whose keys are reserved are dropped and
// their names returned so the caller can log the collision.
func New(eventType, pageURL string, at time.Time, id Identity, props map[string]any) (Event, []string) {
	var dropped []string
	var copied map[string]any
	if len(props) > 0 {
		copied = make(map[string]any, len(props))
		for k, v := range props {
			if IsReserved(k) {
				dropped = append(dropped, k)
				continue
			}
			copied[k] = v
		}
	}
	return Event{
		eventType:  eventType,
		pageURL:    pageURL,
		timestamp:  at.UnixMilli(),
		identity:   id,
		properties: copied,
	}, dropped
}

// Type returns the event type.
func (e Event) Type() string { return e.eventType }

// PageURL returns the URL of the page the event happened on.
func (e Event) PageURL() string { return e.pageURL }

// Timestamp returns when the event occurred.
func (e Event) Timestamp() time.Time { return time.UnixMilli(e.timestamp) }

// SessionID returns the session the event belongs to.
func (e Event) SessionID() string { return e.identity.SessionID }

// UserID returns the durable user identifier.
func (e Event) UserID() string { return e.identity.UserID }

// SiteKey returns the site key the client was initialised with.
func (e Event) SiteKey() string { return e.identity.SiteKey }

// Property returns a caller-supplied property.
func (e Event) Property(key string) (any, bool) {
	v, ok := e.properties[key]
	return v, ok
}

// Properties returns a copy of the caller-supplied properties.
func (e Event) Properties() map[string]any {
	return maps.Clone(e.properties)
}

// Fields flattens the event into the wire object.
func (e Event) Fields() map[string]any {
	out := make(map[string]any, len(e.properties)+len(reserved))
	for k, v := range e.properties {
		out[k] = v
	}
	out[FieldEventType] = e.eventType
	out[FieldPageURL] = e.pageURL
	out[FieldTimestamp] = e.timestamp
	out[FieldSessionID] = e.identity.SessionID
	out[FieldUserID] = e.identity.UserID
	out[FieldSiteKey] = e.identity.SiteKey
	return out
}

// MarshalJSON encodes the event as one flat object.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields())
}

// Batch is the collection endpoint request body. Events is always an array,
// even for a single event.
type Batch struct {
	Events []Event `json:"events"`
}

// NewBatch wraps events; a nil slice encodes as an empty array.
func NewBatch(events []Event) Batch {
	if events == nil {
		events = []Event{}
	}
	return Batch{Events: events}
}
