package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leecorbin/support-alert-system/common/logger"
)

const counterSourceReconciler = "reconciler"

// Reconciler periodically recounts escalated conversations from durable state
// and writes the figure back to the aggregate counter. Incremental updates
// are correct on their own; this heals drift after crashes or manual edits.
type Reconciler interface {
	// ReconcileOnce performs a single recount and write-back.
	ReconcileOnce(ctx context.Context) (int, error)
	// Run blocks, reconciling on the configured interval until ctx is done.
	Run(ctx context.Context)
}

type reconciler struct {
	stores   StoreProvider
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(stores StoreProvider, interval time.Duration, log *slog.Logger) Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &reconciler{stores: stores, interval: interval, logger: log}
}

func (r *reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "reconciler"})

	count, err := r.stores.Conversations().CountCountedEscalations(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting escalated conversations: %w", err)
	}

	snapshot, err := r.stores.Metrics().Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading metrics snapshot: %w", err)
	}

	previous := -1
	if snapshot.EscalatedSessions != nil {
		previous = *snapshot.EscalatedSessions
	}

	if err := r.stores.Metrics().SetEscalated(ctx, count, counterSourceReconciler); err != nil {
		return 0, fmt.Errorf("writing reconciled count: %w", err)
	}

	if previous != count {
		r.logger.InfoContext(ctx, "reconciled escalated sessions", "previous", previous, "reconciled", count)
	} else {
		r.logger.DebugContext(ctx, "escalated sessions already consistent", "count", count)
	}

	return count, nil
}

func (r *reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "reconciler started", "interval", r.interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
			}
		}
	}
}
