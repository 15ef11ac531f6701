package model

import "time"

type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "OPEN"
	ConversationStatusClosed ConversationStatus = "CLOSED"
)

// Conversation is the tracked state of one support conversation.
//
// Invariants: EscalationCounted implies Escalated; Escalated implies
// HasHadBotAssignment. Closure clears EscalationCounted but never Escalated,
// so escalation history survives the conversation.
type Conversation struct {
	LastUpdated         time.Time          `json:"last_updated"`
	EscalatedAt         *time.Time         `json:"escalated_at,omitempty"`
	ClosedAt            *time.Time         `json:"closed_at,omitempty"`
	CurrentAssignee     *string            `json:"current_assignee,omitempty"`
	EscalatedFrom       *string            `json:"escalated_from,omitempty"`
	EscalatedTo         *string            `json:"escalated_to,omitempty"`
	ConversationID      string             `json:"conversation_id"`
	Status              ConversationStatus `json:"status"`
	Version             int64              `json:"version"`
	HasHadBotAssignment bool               `json:"has_had_bot_assignment"`
	Escalated           bool               `json:"escalated"`
	EscalationCounted   bool               `json:"escalation_counted"`
}

// ConversationPatch is a field-level merge write. Nil fields are preserved on
// the stored record; boolean flags are OR-merged so they stay sticky under
// out-of-order delivery.
type ConversationPatch struct {
	EscalatedAt         *time.Time
	ClosedAt            *time.Time
	CurrentAssignee     *string
	EscalatedFrom       *string
	EscalatedTo         *string
	Status              *ConversationStatus
	HasHadBotAssignment *bool
	Escalated           *bool
	EscalationCounted   *bool
	ConversationID      string
}
