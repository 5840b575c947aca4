// Package dispatch defines the unit of work that flows through the pipeline.
package dispatch

import (
	"encoding/json"
	"sync"

	"analytics-sdk/internal/common/utils"
)

// Well-known payload keys.
const (
	KeyRequestUUID        = "request_uuid"
	KeyEventType          = "tealium_event_type"
	KeyEvent              = "tealium_event"
	KeyScreenTitle        = "screen_title"
	KeyAccount            = "tealium_account"
	KeyProfile            = "tealium_profile"
	KeyEnvironment        = "tealium_environment"
	KeyDataSource         = "tealium_datasource"
	KeyVisitorID          = "tealium_visitor_id"
	KeyDevice             = "device"
	KeyDeviceArchitecture = "device_architecture"
	KeyDeviceResolution   = "device_resolution"
	KeyTimestampUnix      = "timestamp_unix_milliseconds"
)

// Event types.
const (
	EventTypeEvent = "event"
	EventTypeView  = "view"
)

// Dispatch is a tracked event: an immutable ID, a timestamp fixed when the
// router accepts it, and a payload that only grows or has keys overwritten.
// A Dispatch is safe for concurrent use.
type Dispatch struct {
	id string

	mu        sync.RWMutex
	timestamp *int64
	payload   map[string]interface{}
}

// New creates a dispatch with a fresh ID and a copy of data as its payload.
func New(data map[string]interface{}) *Dispatch {
	id := utils.GenerateDispatchID()
	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[KeyRequestUUID] = id
	return &Dispatch{id: id, payload: payload}
}

// NewEvent creates an event dispatch named name.
func NewEvent(name string, data map[string]interface{}) *Dispatch {
	d := New(data)
	d.payload[KeyEventType] = EventTypeEvent
	d.payload[KeyEvent] = name
	return d
}

// NewView creates a view dispatch for the screen named name.
func NewView(name string, data map[string]interface{}) *Dispatch {
	d := New(data)
	d.payload[KeyEventType] = EventTypeView
	d.payload[KeyEvent] = name
	d.payload[KeyScreenTitle] = name
	return d
}

// FromPayload rebuilds a dispatch read back from storage.
func FromPayload(id string, timestamp *int64, payload map[string]interface{}) *Dispatch {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	if id == "" {
		if stored, ok := payload[KeyRequestUUID].(string); ok {
			id = stored
		} else {
			id = utils.GenerateDispatchID()
		}
	}
	payload[KeyRequestUUID] = id
	return &Dispatch{id: id, timestamp: timestamp, payload: payload}
}

// ID returns the dispatch identifier.
func (d *Dispatch) ID() string {
	return d.id
}

// Timestamp returns the epoch milliseconds set by the router, or nil if the
// dispatch has not been accepted yet.
func (d *Dispatch) Timestamp() *int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.timestamp == nil {
		return nil
	}
	ts := *d.timestamp
	return &ts
}

// SetTimestamp fixes the timestamp. Later calls are ignored.
func (d *Dispatch) SetTimestamp(millis int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timestamp == nil {
		d.timestamp = &millis
	}
}

// SortKey returns the timestamp or 0 when unset.
func (d *Dispatch) SortKey() int64 {
	if ts := d.Timestamp(); ts != nil {
		return *ts
	}
	return 0
}

// Get returns a payload value.
func (d *Dispatch) Get(key string) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.payload[key]
	return v, ok
}

// GetString returns a payload value when it is a string.
func (d *Dispatch) GetString(key string) string {
	v, _ := d.Get(key)
	s, _ := v.(string)
	return s
}

// AddAll merges data into the payload, overwriting existing keys.
// The request UUID cannot be overwritten.
func (d *Dispatch) AddAll(data map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range data {
		if k == KeyRequestUUID {
			continue
		}
		d.payload[k] = v
	}
}

// Remove deletes a key from the payload.
func (d *Dispatch) Remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.payload, key)
}

// Payload returns a shallow copy of the payload.
func (d *Dispatch) Payload() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]interface{}, len(d.payload))
	for k, v := range d.payload {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the payload.
func (d *Dispatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Payload())
}
