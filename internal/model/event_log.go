package model

import (
	"encoding/json"
	"time"
)

// Event types recorded in the event log. Assignment changes drive escalation
// detection; status changes drive closure handling.
const (
	EventTypeAssignmentChange = "assignment_change"
	EventTypeStatusChange     = "status_change"
	EventTypeCreation         = "conversation_created"
)

// EventLog is one observed webhook event, immutable once appended. The log is
// unordered by arrival; history reconstruction sorts by ObservedAt.
type EventLog struct {
	ObservedAt      time.Time  `json:"observed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError *string    `json:"processing_error,omitempty"`
	PropertyName    *string    `json:"property_name,omitempty"`
	// PropertyValue holds the new assignee for assignment events and the
	// new status for status events.
	PropertyValue  *string         `json:"property_value,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	ConversationID string          `json:"conversation_id"`
	EventType      string          `json:"event_type"`
	DedupeKey      string          `json:"dedupe_key"`
	ID             int64           `json:"id"`
}
