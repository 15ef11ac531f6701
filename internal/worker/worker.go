// Package worker runs the event processing loop: it drains the Redis stream,
// feeds each event through the escalation detector, and acknowledges,
// requeues, or dead-letters the message depending on the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leecorbin/support-alert-system/common/logger"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/queue"
	"github.com/leecorbin/support-alert-system/internal/service"
	"github.com/leecorbin/support-alert-system/internal/store"
)

const (
	sweepInterval = 5 * time.Minute
	sweepBatch    = 100
	// Events younger than this are assumed to be in flight on the stream.
	sweepMinAge = 2 * time.Minute
)

type Worker struct {
	consumer *queue.RedisConsumer
	producer queue.Producer
	stores   service.StoreProvider
	detector service.EscalationDetector
	logger   *slog.Logger
}

func New(consumer *queue.RedisConsumer, producer queue.Producer, stores service.StoreProvider, detector service.EscalationDetector, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		consumer: consumer,
		producer: producer,
		stores:   stores,
		detector: detector,
		logger:   log,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.InfoContext(ctx, "worker started")

	go w.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "worker stopped")
			return
		default:
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.ErrorContext(ctx, "failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_event")
	defer span.End()
	ctx = logger.WithLogFields(span.Context(), logger.LogFields{
		ConversationID: &msg.ConversationID,
		EventLogID:     logger.Ptr(msg.EventLogID),
		EventType:      &msg.EventType,
		Component:      "worker",
	})

	err := w.processEvent(ctx, msg.EventLogID)
	if err == nil {
		if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
			w.logger.ErrorContext(ctx, "failed to ack message", "error", ackErr)
		}
		return
	}

	span.RecordError(err)
	w.logger.ErrorContext(ctx, "event processing failed", "error", err, "attempt", msg.Attempt)

	if msg.Attempt >= w.consumer.MaxAttempts() {
		if markErr := w.stores.EventLogs().MarkFailed(ctx, msg.EventLogID, err.Error()); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark event failed", "error", markErr)
		}
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			w.logger.ErrorContext(ctx, "failed to send message to DLQ", "error", dlqErr)
		}
		return
	}

	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		w.logger.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

// processEvent loads the durable event and runs detection. Panics in the
// detector are converted to errors so one poisoned event cannot take the
// loop down.
func (w *Worker) processEvent(ctx context.Context, eventLogID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing event: %v", r)
		}
	}()

	event, err := w.stores.EventLogs().GetByID(ctx, eventLogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The log row is gone; nothing to process and nothing to retry.
			w.logger.WarnContext(ctx, "event log entry not found, dropping message")
			return nil
		}
		return fmt.Errorf("loading event log: %w", err)
	}

	if event.ProcessedAt != nil && event.ProcessingError == nil {
		w.logger.DebugContext(ctx, "event already processed, skipping")
		return nil
	}

	if err := w.detector.ProcessEvent(ctx, event); err != nil {
		return err
	}

	return w.stores.EventLogs().MarkProcessed(ctx, event.ID)
}

// runSweep periodically re-enqueues durable events that never made it through
// processing, covering enqueue failures on the ingest side and messages lost
// to a crashed consumer. Detection is idempotent, so re-delivering an event
// that is merely slow is harmless.
func (w *Worker) runSweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepUnprocessed(ctx)
		}
	}
}

func (w *Worker) sweepUnprocessed(ctx context.Context) {
	events, err := w.stores.EventLogs().ListUnprocessed(ctx, sweepBatch)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list unprocessed events", "error", err)
		return
	}

	cutoff := time.Now().Add(-sweepMinAge)
	requeued := 0
	for i := range events {
		event := &events[i]
		if event.CreatedAt.After(cutoff) {
			continue
		}
		if err := w.enqueue(ctx, event); err != nil {
			w.logger.ErrorContext(ctx, "failed to re-enqueue event", "error", err, "event_log_id", event.ID)
			continue
		}
		requeued++
	}

	if requeued > 0 {
		w.logger.InfoContext(ctx, "re-enqueued stalled events", "count", requeued)
	}
}

func (w *Worker) enqueue(ctx context.Context, event *model.EventLog) error {
	return w.producer.Enqueue(ctx, queue.EventMessage{
		EventLogID:     event.ID,
		ConversationID: event.ConversationID,
		EventType:      event.EventType,
	})
}
