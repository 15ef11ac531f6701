package service

import (
	"time"

	"github.com/leecorbin/support-alert-system/internal/model"
)

// unknownBot is recorded as the escalation source when a bot assignment is
// known to have happened but the specific bot identifier was lost to an
// out-of-order delivery.
const unknownBot = "unknown-bot"

// AssignmentFacts is everything the transition function needs to know about
// one assignment event, with bot classification already resolved by the
// caller. Keeping classification out of the transition keeps it pure.
type AssignmentFacts struct {
	Now            time.Time
	ConversationID string
	Assignee       string
	// IsBot reports whether Assignee is in the configured bot set.
	IsBot bool
	// PrevAssigneeIsBot reports whether the stored current assignee is in
	// the bot set. Meaningless when State is nil.
	PrevAssigneeIsBot bool
	// RecentBotAssignee is the result of the event-log fallback scan, used
	// only when State is nil: the most recent bot seen for this
	// conversation, or nil if none.
	RecentBotAssignee *string
}

// Outcome is the full effect of one event on a conversation: the state merge
// to persist, the aggregate counter adjustment, and the alert to raise.
// CounterDelta is applied in the same transaction as the patch.
type Outcome struct {
	Patch        model.ConversationPatch
	Alert        model.AlertClass // empty means no alert
	CounterDelta int
}

// TransitionAssignment decides what one assignment-change event does to a
// conversation. state is nil when no record exists yet.
//
// The escalation test is deliberately about the event's *prior* state: a bot
// assignment arriving after a human one never retroactively escalates, and a
// conversation that already escalated never increments again, so replaying a
// logged event is safe.
func TransitionAssignment(state *model.Conversation, facts AssignmentFacts) Outcome {
	// Assignment patches never touch status. New rows default to OPEN on
	// insert, and a late assignment must not reopen a closed conversation.
	if facts.IsBot {
		out := Outcome{
			Patch: model.ConversationPatch{
				ConversationID:      facts.ConversationID,
				CurrentAssignee:     &facts.Assignee,
				HasHadBotAssignment: boolPtr(true),
			},
		}
		if state == nil {
			out.Alert = model.AlertClassNewChat
		}
		return out
	}

	// Human assignment. Determine whether a bot owned this conversation
	// before the current event.
	var (
		isEscalation  bool
		escalatedFrom string
	)

	switch {
	case state != nil && (facts.PrevAssigneeIsBot || state.HasHadBotAssignment):
		isEscalation = true
		if state.CurrentAssignee != nil {
			escalatedFrom = *state.CurrentAssignee
		} else {
			escalatedFrom = unknownBot
		}
	case state == nil && facts.RecentBotAssignee != nil:
		isEscalation = true
		escalatedFrom = *facts.RecentBotAssignee
	}

	// Already-escalated conversations stay escalated; a reassignment among
	// humans must not count again, and a closed conversation must not start
	// contributing to the counter off a straggling assignment.
	if isEscalation && (state == nil || (!state.Escalated && state.Status != model.ConversationStatusClosed)) {
		return Outcome{
			Patch: model.ConversationPatch{
				ConversationID:      facts.ConversationID,
				CurrentAssignee:     &facts.Assignee,
				HasHadBotAssignment: boolPtr(true),
				Escalated:           boolPtr(true),
				EscalatedAt:         &facts.Now,
				EscalatedFrom:       &escalatedFrom,
				EscalatedTo:         &facts.Assignee,
				EscalationCounted:   boolPtr(true),
			},
			Alert:        model.AlertClassEscalation,
			CounterDelta: +1,
		}
	}

	out := Outcome{
		Patch: model.ConversationPatch{
			ConversationID:  facts.ConversationID,
			CurrentAssignee: &facts.Assignee,
		},
	}
	if state == nil {
		out.Alert = model.AlertClassNewChat
	}
	return out
}

// TransitionClosure decides what a closure does. The decrement is guarded on
// EscalationCounted, not just Escalated, so closing an already-closed
// escalated conversation twice cannot drive the counter down twice.
func TransitionClosure(state *model.Conversation, conversationID string, now time.Time) Outcome {
	statusClosed := model.ConversationStatusClosed

	out := Outcome{
		Patch: model.ConversationPatch{
			ConversationID: conversationID,
			Status:         &statusClosed,
			ClosedAt:       &now,
		},
		Alert: model.AlertClassClosure,
	}

	if state != nil && state.Escalated && state.EscalationCounted {
		out.Patch.EscalationCounted = boolPtr(false)
		out.CounterDelta = -1
	}

	return out
}

// TransitionReopen handles a conversation whose status flips back to open.
func TransitionReopen(conversationID string) Outcome {
	statusOpen := model.ConversationStatusOpen
	return Outcome{
		Patch: model.ConversationPatch{
			ConversationID: conversationID,
			Status:         &statusOpen,
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
