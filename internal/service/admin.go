package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leecorbin/support-alert-system/common/logger"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/store"
)

const counterSourceAdmin = "admin"

// ConversationDebug is a conversation's stored state together with its full
// event history, oldest first. State is nil when the detector has not yet
// materialized the conversation.
type ConversationDebug struct {
	State   *model.Conversation `json:"state"`
	History []model.EventLog    `json:"history"`
}

// Admin backs the operator debug endpoints. Everything here is manual
// intervention tooling; none of it runs on the hot path.
type Admin interface {
	GetConversation(ctx context.Context, conversationID string) (*ConversationDebug, error)
	// Recalculate recounts the escalated-sessions figure from conversation
	// state and writes it back.
	Recalculate(ctx context.Context) (int, error)
	// ResetEscalations zeroes the counter and clears every counted flag so
	// detection starts from a clean slate.
	ResetEscalations(ctx context.Context) error
	// PurgeConversations drops all conversation state and zeroes the
	// counter. Event logs are kept; replay can rebuild everything.
	PurgeConversations(ctx context.Context) error
	// ReplayConversation re-runs a conversation's logged events, oldest
	// first, through the detector. Safe on processed events.
	ReplayConversation(ctx context.Context, conversationID string) (int, error)
}

type admin struct {
	stores   StoreProvider
	txRunner TxRunner
	detector EscalationDetector
	logger   *slog.Logger
}

func NewAdmin(stores StoreProvider, txRunner TxRunner, detector EscalationDetector, log *slog.Logger) Admin {
	if log == nil {
		log = slog.Default()
	}
	return &admin{stores: stores, txRunner: txRunner, detector: detector, logger: log}
}

func (a *admin) GetConversation(ctx context.Context, conversationID string) (*ConversationDebug, error) {
	state, err := a.stores.Conversations().GetByID(ctx, conversationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	history, err := a.stores.EventLogs().ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading event history: %w", err)
	}

	if state == nil && len(history) == 0 {
		return nil, store.ErrNotFound
	}

	return &ConversationDebug{State: state, History: history}, nil
}

func (a *admin) Recalculate(ctx context.Context) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "admin"})

	count, err := a.stores.Conversations().CountCountedEscalations(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting escalated conversations: %w", err)
	}
	if err := a.stores.Metrics().SetEscalated(ctx, count, counterSourceAdmin); err != nil {
		return 0, fmt.Errorf("writing recalculated count: %w", err)
	}

	a.logger.InfoContext(ctx, "escalated sessions recalculated", "count", count)
	return count, nil
}

func (a *admin) ResetEscalations(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "admin"})

	err := a.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		if err := sp.Conversations().ClearCountedFlags(ctx); err != nil {
			return fmt.Errorf("clearing counted flags: %w", err)
		}
		return sp.Metrics().ResetEscalated(ctx, counterSourceAdmin)
	})
	if err != nil {
		return err
	}

	a.logger.WarnContext(ctx, "escalation counter reset")
	return nil
}

func (a *admin) PurgeConversations(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "admin"})

	err := a.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		if err := sp.Conversations().DeleteAll(ctx); err != nil {
			return fmt.Errorf("deleting conversations: %w", err)
		}
		return sp.Metrics().ResetEscalated(ctx, counterSourceAdmin)
	})
	if err != nil {
		return err
	}

	a.logger.WarnContext(ctx, "all conversation state purged")
	return nil
}

func (a *admin) ReplayConversation(ctx context.Context, conversationID string) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conversationID,
		Component:      "admin",
	})

	history, err := a.stores.EventLogs().ListByConversation(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("loading event history: %w", err)
	}
	if len(history) == 0 {
		return 0, store.ErrNotFound
	}

	for i := range history {
		if err := a.detector.ProcessEvent(ctx, &history[i]); err != nil {
			return i, fmt.Errorf("replaying event %d: %w", history[i].ID, err)
		}
	}

	a.logger.InfoContext(ctx, "conversation replayed", "events", len(history))
	return len(history), nil
}
