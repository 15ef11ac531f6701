package store

import (
	"context"
	"errors"

	"github.com/leecorbin/support-alert-system/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// EventLogStore defines the contract for the append-only assignment event log
type EventLogStore interface {
	// CreateOrGet appends the event, or returns the existing row when the
	// dedupe key has been seen before. The bool reports whether a new row
	// was created.
	CreateOrGet(ctx context.Context, log *model.EventLog) (*model.EventLog, bool, error)
	GetByID(ctx context.Context, id int64) (*model.EventLog, error)
	// ListByConversation returns the full history, oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]model.EventLog, error)
	// ListRecentByConversation returns up to limit events, newest first.
	ListRecentByConversation(ctx context.Context, conversationID string, limit int32) ([]model.EventLog, error)
	ListUnprocessed(ctx context.Context, limit int32) ([]model.EventLog, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// ConversationStore defines the contract for per-conversation state
type ConversationStore interface {
	GetByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	// Merge applies a field-level partial update, creating the record if it
	// does not exist. Nil patch fields leave stored values untouched.
	Merge(ctx context.Context, patch model.ConversationPatch) (*model.Conversation, error)
	// CountCountedEscalations counts open conversations currently
	// contributing to the escalated-sessions figure.
	CountCountedEscalations(ctx context.Context) (int, error)
	ClearCountedFlags(ctx context.Context) error
	DeleteAll(ctx context.Context) error
}

// MetricsStore defines the contract for the singleton aggregate record
type MetricsStore interface {
	Get(ctx context.Context) (*model.MetricsSnapshot, error)
	// IncrementEscalated atomically adds one to the escalated-sessions count
	// and returns the new value.
	IncrementEscalated(ctx context.Context, source string) (int, error)
	// DecrementEscalated atomically subtracts one, floored at zero.
	DecrementEscalated(ctx context.Context, source string) (int, error)
	SetEscalated(ctx context.Context, count int, source string) error
	SetActive(ctx context.Context, count *int, source string) error
	SetTickets(ctx context.Context, tickets model.TicketCounts, source string) error
	ResetEscalated(ctx context.Context, source string) error
}

// AlertStore defines the contract for the durable alert audit sink
type AlertStore interface {
	Append(ctx context.Context, alert *model.Alert) error
	ListRecent(ctx context.Context, limit int32) ([]model.Alert, error)
}
