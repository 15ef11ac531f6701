package model

import "time"

type AlertClass string

const (
	AlertClassNewChat    AlertClass = "new_chat"
	AlertClassEscalation AlertClass = "escalation"
	AlertClassClosure    AlertClass = "closure"
	AlertClassGeneric    AlertClass = "generic"
)

// Alert is one human-readable notification appended to the audit sink.
type Alert struct {
	CreatedAt      time.Time  `json:"created_at"`
	ConversationID string     `json:"conversation_id"`
	Message        string     `json:"message"`
	Class          AlertClass `json:"class"`
	ID             int64      `json:"id"`
}
