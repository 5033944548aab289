package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by producers and consumers
const (
	KeyFromState   = "from_state"
	KeyToState     = "to_state"
	KeyAction      = "action"
	KeyComment     = "comment"
	KeyLevel       = "escalation_level"
	KeyNotifyRole  = "notify_role"
	KeyNotifyUsers = "notify_users"
	KeyProjectID   = "project_id"
	KeyRecordID    = "record_id"
	KeyLockHolder  = "lock_holder"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	DocumentID    string                 `json:"document_id,omitempty"`
	VersionID     string                 `json:"version_id,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with generated IDs and the current time
func NewEvent(eventType Type, documentID, versionID, actorID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		DocumentID:    documentID,
		VersionID:     versionID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// NewTransition builds the event emitted after a committed state change
func NewTransition(documentID, versionID, actorID, action, from, to string, at time.Time) *Event {
	evt := NewEvent(TypeVersionTransitioned, documentID, versionID, actorID, map[string]interface{}{
		KeyAction:    action,
		KeyFromState: from,
		KeyToState:   to,
	})
	evt.Timestamp = at
	return evt
}

// NewEscalation builds the event emitted when a version crosses an escalation level
func NewEscalation(documentID, versionID string, level int, notifyRole string, notifyUsers []string, at time.Time) *Event {
	users := append([]string(nil), notifyUsers...)
	evt := NewEvent(TypeVersionEscalated, documentID, versionID, "", map[string]interface{}{
		KeyLevel:       level,
		KeyNotifyRole:  notifyRole,
		KeyNotifyUsers: users,
	})
	evt.Timestamp = at
	return evt
}

// WithCorrelation returns a copy linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	cp := e.clone(len(e.Payload))
	cp.CorrelationID = correlationID
	return cp
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	cp := e.clone(len(e.Payload) + 1)
	cp.Payload[key] = value
	return cp
}

func (e *Event) clone(size int) *Event {
	payload := make(map[string]interface{}, size)
	for k, v := range e.Payload {
		payload[k] = v
	}
	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadStrings retrieves a string list from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
