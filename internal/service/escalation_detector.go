package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leecorbin/support-alert-system/common/logger"
	"github.com/leecorbin/support-alert-system/core/config"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/store"
)

// counterSource tags aggregate-counter writes for audit.
const counterSourceDetector = "detector"

// EscalationDetector consumes logged events and decides whether each one is
// the human arm of a bot-to-human handover. It owns all writes to
// conversation state and to the escalated-sessions figure of the aggregate
// counter.
type EscalationDetector interface {
	// ProcessEvent handles one event log entry. It is safe to call again
	// for an event that has already been processed.
	ProcessEvent(ctx context.Context, event *model.EventLog) error
}

type escalationDetector struct {
	stores     StoreProvider
	txRunner   TxRunner
	dispatcher AlertDispatcher
	botIDs     map[string]struct{}
	lookback   int32
	locks      *keyedMutex
	logger     *slog.Logger
}

func NewEscalationDetector(stores StoreProvider, txRunner TxRunner, dispatcher AlertDispatcher, cfg config.DetectionConfig, log *slog.Logger) EscalationDetector {
	if log == nil {
		log = slog.Default()
	}

	botIDs := make(map[string]struct{}, len(cfg.BotIDs))
	for _, id := range cfg.BotIDs {
		botIDs[strings.TrimSpace(id)] = struct{}{}
	}

	lookback := int32(cfg.HistoryLookback)
	if lookback < 10 {
		lookback = 10
	}

	return &escalationDetector{
		stores:     stores,
		txRunner:   txRunner,
		dispatcher: dispatcher,
		botIDs:     botIDs,
		lookback:   lookback,
		locks:      newKeyedMutex(),
		logger:     log,
	}
}

func (d *escalationDetector) ProcessEvent(ctx context.Context, event *model.EventLog) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &event.ConversationID,
		EventLogID:     logger.Ptr(event.ID),
		EventType:      &event.EventType,
		Component:      "detector",
	})

	// Events for the same conversation are serialized; concurrent
	// read-modify-write cycles on one conversation would race the
	// escalation decision.
	unlock := d.locks.Lock(event.ConversationID)
	defer unlock()

	if len(d.botIDs) == 0 {
		d.logger.WarnContext(ctx, "no bot ids configured, escalation detection disabled")
		return nil
	}

	switch event.EventType {
	case model.EventTypeAssignmentChange:
		return d.handleAssignment(ctx, event)
	case model.EventTypeStatusChange:
		return d.handleStatusChange(ctx, event)
	case model.EventTypeCreation:
		return d.handleCreation(ctx, event)
	default:
		d.logger.DebugContext(ctx, "ignoring unsupported event type")
		return nil
	}
}

func (d *escalationDetector) handleAssignment(ctx context.Context, event *model.EventLog) error {
	assignee := ""
	if event.PropertyValue != nil {
		assignee = *event.PropertyValue
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Assignee: &assignee})

	state, err := d.loadState(ctx, event.ConversationID)
	if err != nil {
		return fmt.Errorf("loading conversation state: %w", err)
	}

	facts := AssignmentFacts{
		Now:            time.Now().UTC(),
		ConversationID: event.ConversationID,
		Assignee:       assignee,
		IsBot:          d.isBot(assignee),
	}

	if state != nil && state.CurrentAssignee != nil {
		facts.PrevAssigneeIsBot = d.isBot(*state.CurrentAssignee)
	}

	// First observed event for this conversation being a human assignment
	// usually means the bot-assignment event is still in flight; check the
	// durable log for it before concluding there was no bot.
	if state == nil && !facts.IsBot {
		recentBot, err := d.checkRecentBotAssignment(ctx, event)
		if err != nil {
			return fmt.Errorf("checking recent bot assignment: %w", err)
		}
		facts.RecentBotAssignee = recentBot
	}

	outcome := TransitionAssignment(state, facts)

	if err := d.apply(ctx, outcome); err != nil {
		return err
	}

	if outcome.Alert == model.AlertClassEscalation {
		escalatedFrom := ""
		if outcome.Patch.EscalatedFrom != nil {
			escalatedFrom = *outcome.Patch.EscalatedFrom
		}
		d.logger.InfoContext(ctx, "escalation detected", "escalated_from", escalatedFrom, "escalated_to", assignee)
	}

	d.dispatch(ctx, outcome, event.ConversationID)
	return nil
}

func (d *escalationDetector) handleStatusChange(ctx context.Context, event *model.EventLog) error {
	status := ""
	if event.PropertyValue != nil {
		status = strings.ToUpper(*event.PropertyValue)
	}

	state, err := d.loadState(ctx, event.ConversationID)
	if err != nil {
		return fmt.Errorf("loading conversation state: %w", err)
	}

	var outcome Outcome
	switch status {
	case string(model.ConversationStatusClosed):
		outcome = TransitionClosure(state, event.ConversationID, time.Now().UTC())
	case string(model.ConversationStatusOpen):
		outcome = TransitionReopen(event.ConversationID)
	default:
		d.logger.DebugContext(ctx, "ignoring unknown status value", "status", status)
		return nil
	}

	if err := d.apply(ctx, outcome); err != nil {
		return err
	}

	d.dispatch(ctx, outcome, event.ConversationID)
	return nil
}

func (d *escalationDetector) handleCreation(ctx context.Context, event *model.EventLog) error {
	outcome := TransitionReopen(event.ConversationID)
	outcome.Alert = model.AlertClassNewChat

	if err := d.apply(ctx, outcome); err != nil {
		return err
	}

	d.dispatch(ctx, outcome, event.ConversationID)
	return nil
}

// checkRecentBotAssignment scans the most recent logged assignment events for
// the conversation, newest first, and returns the first bot assignee observed
// before the current event. A bot assignment observed after it means the bot
// took over from the human, which is not a handover to detect. Bounded
// lookback: this corrects for reordered delivery, it is not a replay.
func (d *escalationDetector) checkRecentBotAssignment(ctx context.Context, current *model.EventLog) (*string, error) {
	events, err := d.stores.EventLogs().ListRecentByConversation(ctx, current.ConversationID, d.lookback)
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		if event.ID == current.ID || event.ObservedAt.After(current.ObservedAt) {
			continue
		}
		if event.EventType != model.EventTypeAssignmentChange || event.PropertyValue == nil {
			continue
		}
		if d.isBot(*event.PropertyValue) {
			assignee := *event.PropertyValue
			return &assignee, nil
		}
	}
	return nil, nil
}

// apply persists the outcome: the state merge and the counter adjustment
// commit or roll back together.
func (d *escalationDetector) apply(ctx context.Context, outcome Outcome) error {
	return d.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		if _, err := sp.Conversations().Merge(ctx, outcome.Patch); err != nil {
			return fmt.Errorf("merging conversation state: %w", err)
		}

		switch {
		case outcome.CounterDelta > 0:
			count, err := sp.Metrics().IncrementEscalated(ctx, counterSourceDetector)
			if err != nil {
				return err
			}
			d.logger.InfoContext(ctx, "escalated sessions incremented", "escalated_sessions", count)
		case outcome.CounterDelta < 0:
			count, err := sp.Metrics().DecrementEscalated(ctx, counterSourceDetector)
			if err != nil {
				return err
			}
			d.logger.InfoContext(ctx, "escalated sessions decremented", "escalated_sessions", count)
		}

		return nil
	})
}

func (d *escalationDetector) dispatch(ctx context.Context, outcome Outcome, conversationID string) {
	if outcome.Alert == "" || d.dispatcher == nil {
		return
	}

	details := AlertDetails{ConversationID: conversationID}
	if outcome.Patch.EscalatedFrom != nil {
		details.EscalatedFrom = *outcome.Patch.EscalatedFrom
	}
	if outcome.Patch.EscalatedTo != nil {
		details.EscalatedTo = *outcome.Patch.EscalatedTo
	}

	d.dispatcher.Dispatch(ctx, outcome.Alert, details)
}

func (d *escalationDetector) loadState(ctx context.Context, conversationID string) (*model.Conversation, error) {
	state, err := d.stores.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return state, nil
}

func (d *escalationDetector) isBot(assignee string) bool {
	_, ok := d.botIDs[assignee]
	return ok
}
