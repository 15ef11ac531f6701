package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/leecorbin/support-alert-system/common/id"
	"github.com/leecorbin/support-alert-system/common/logger"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/queue"
)

// Webhook property names the pipeline cares about.
const (
	propertyAssignedTo = "assignedTo"
	propertyStatus     = "status"
)

// InboundEvent is one webhook event after transport-level parsing, before
// classification. EventID is the upstream delivery identifier when the
// helpdesk provides one.
type InboundEvent struct {
	OccurredAt       time.Time
	ConversationID   string
	SubscriptionType string
	PropertyName     string
	PropertyValue    string
	EventID          string
	Payload          json.RawMessage
}

// IngestResult summarizes one ingest batch.
type IngestResult struct {
	Accepted   int
	Duplicates int
	Skipped    int
}

// EventIngest appends webhook events to the durable log and hands the new
// ones to the processing queue. The log append is the idempotency barrier:
// a redelivered event maps to the same dedupe key and is not re-enqueued.
type EventIngest interface {
	Ingest(ctx context.Context, events []InboundEvent) (IngestResult, error)
}

type eventIngest struct {
	txRunner TxRunner
	producer queue.Producer
	logger   *slog.Logger
}

func NewEventIngest(txRunner TxRunner, producer queue.Producer, log *slog.Logger) EventIngest {
	if log == nil {
		log = slog.Default()
	}
	return &eventIngest{txRunner: txRunner, producer: producer, logger: log}
}

func (s *eventIngest) Ingest(ctx context.Context, events []InboundEvent) (IngestResult, error) {
	var result IngestResult

	for i := range events {
		event := &events[i]

		eventType, ok := classifyEvent(event)
		if !ok {
			result.Skipped++
			s.logger.DebugContext(ctx, "skipping unsupported webhook event",
				"subscription_type", event.SubscriptionType,
				"property_name", event.PropertyName)
			continue
		}

		created, logEntry, err := s.append(ctx, event, eventType)
		if err != nil {
			return result, fmt.Errorf("appending event for conversation %s: %w", event.ConversationID, err)
		}
		if !created {
			result.Duplicates++
			s.logger.InfoContext(ctx, "duplicate webhook delivery ignored",
				"conversation_id", event.ConversationID,
				"event_log_id", logEntry.ID)
			continue
		}
		result.Accepted++

		if err := s.enqueue(ctx, logEntry); err != nil {
			// The event is durable; the worker's unprocessed sweep picks
			// it up even if the enqueue is lost here.
			s.logger.ErrorContext(ctx, "failed to enqueue event log", "error", err, "event_log_id", logEntry.ID)
		}
	}

	return result, nil
}

func (s *eventIngest) append(ctx context.Context, event *InboundEvent, eventType string) (bool, *model.EventLog, error) {
	observedAt := event.OccurredAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	entry := &model.EventLog{
		ID:             id.New(),
		ConversationID: event.ConversationID,
		EventType:      eventType,
		DedupeKey:      dedupeKey(event),
		ObservedAt:     observedAt,
		Payload:        payload,
	}
	if event.PropertyName != "" {
		entry.PropertyName = &event.PropertyName
	}
	if event.PropertyValue != "" {
		entry.PropertyValue = &event.PropertyValue
	}

	var (
		stored  *model.EventLog
		created bool
	)
	err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		var txErr error
		stored, created, txErr = sp.EventLogs().CreateOrGet(ctx, entry)
		return txErr
	})
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (s *eventIngest) enqueue(ctx context.Context, entry *model.EventLog) error {
	msg := queue.EventMessage{
		EventLogID:     entry.ID,
		ConversationID: entry.ConversationID,
		EventType:      entry.EventType,
	}

	if span := trace.SpanContextFromContext(ctx); span.HasTraceID() {
		msg.TraceID = logger.Ptr(span.TraceID().String())
	}

	return s.producer.Enqueue(ctx, msg)
}

// classifyEvent maps the helpdesk's subscription/property vocabulary onto the
// pipeline's event types. Anything else is logged and skipped.
func classifyEvent(event *InboundEvent) (string, bool) {
	if event.ConversationID == "" {
		return "", false
	}

	if strings.HasSuffix(event.SubscriptionType, ".creation") {
		return model.EventTypeCreation, true
	}

	if strings.HasSuffix(event.SubscriptionType, ".propertyChange") || event.SubscriptionType == "" {
		switch event.PropertyName {
		case propertyAssignedTo:
			return model.EventTypeAssignmentChange, true
		case propertyStatus:
			return model.EventTypeStatusChange, true
		}
	}

	return "", false
}

// dedupeKey prefers the upstream event id; identical redeliveries share it.
// Without one, fall back to a digest of the event's identifying facts. The
// timestamp is part of the digest so two legitimate identical assignments at
// different times are distinct events.
func dedupeKey(event *InboundEvent) string {
	if event.EventID != "" {
		return "evt:" + event.EventID
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d",
		event.ConversationID,
		event.SubscriptionType,
		event.PropertyName,
		event.PropertyValue,
		event.OccurredAt.UnixMilli(),
	)
	return "sha:" + hex.EncodeToString(h.Sum(nil))
}
