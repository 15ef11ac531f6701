package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leecorbin/support-alert-system/common/id"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/store"
)

// AlertDetails carries the conversation facts an alert message is built from.
type AlertDetails struct {
	ConversationID string
	EscalatedFrom  string
	EscalatedTo    string
	Message        string // overrides the class template when set
}

// AlertDispatcher fans an alert out to every configured sink. Dispatch never
// blocks the caller on delivery and never reports delivery failure upward;
// alerting is best effort and must not fail event processing.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, class model.AlertClass, details AlertDetails)
	// Wait blocks until all in-flight deliveries finish. Used on shutdown.
	Wait()
}

type alertDispatcher struct {
	alerts store.AlertStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAlertDispatcher(alerts store.AlertStore, log *slog.Logger) AlertDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &alertDispatcher{alerts: alerts, logger: log}
}

func (d *alertDispatcher) Dispatch(ctx context.Context, class model.AlertClass, details AlertDetails) {
	message := details.Message
	if message == "" {
		message = formatAlertMessage(class, details)
	}

	alert := &model.Alert{
		ID:             id.New(),
		ConversationID: details.ConversationID,
		Class:          class,
		Message:        message,
	}

	// Delivery outlives the request that triggered it. Each sink gets its
	// own goroutine so a stalled audit write cannot hold up the console line.
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()

		d.logger.InfoContext(ctx, "ALERT: "+message,
			"alert_class", string(class),
			"conversation_id", details.ConversationID,
		)
	}()
	go func() {
		defer d.wg.Done()

		if err := d.alerts.Append(ctx, alert); err != nil {
			d.logger.ErrorContext(ctx, "failed to record alert", "error", err, "alert_class", string(class))
		}
	}()
}

func (d *alertDispatcher) Wait() {
	d.wg.Wait()
}

func formatAlertMessage(class model.AlertClass, details AlertDetails) string {
	switch class {
	case model.AlertClassNewChat:
		return fmt.Sprintf("New chat conversation %s started", details.ConversationID)
	case model.AlertClassEscalation:
		from := details.EscalatedFrom
		if from == "" {
			from = unknownBot
		}
		return fmt.Sprintf("Conversation %s escalated from bot %s to human agent %s", details.ConversationID, from, details.EscalatedTo)
	case model.AlertClassClosure:
		return fmt.Sprintf("Conversation %s closed", details.ConversationID)
	default:
		return fmt.Sprintf("Conversation %s updated", details.ConversationID)
	}
}
