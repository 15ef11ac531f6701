package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leecorbin/support-alert-system/common/logger"
	"github.com/leecorbin/support-alert-system/internal/helpdesk"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/store"
)

const counterSourcePoller = "ticket_poller"

// TicketLister is the slice of the helpdesk client the poller needs.
type TicketLister interface {
	ListOpenTickets(ctx context.Context) ([]helpdesk.Ticket, error)
}

// TicketPoller refreshes the ticket side of the metrics snapshot from the
// helpdesk API on an interval. Session figures are owned by the detector and
// are never touched here.
type TicketPoller interface {
	PollOnce(ctx context.Context) (model.TicketCounts, error)
	Run(ctx context.Context)
}

type ticketPoller struct {
	client   TicketLister
	metrics  store.MetricsStore
	interval time.Duration
	logger   *slog.Logger
}

func NewTicketPoller(client TicketLister, metrics store.MetricsStore, interval time.Duration, log *slog.Logger) TicketPoller {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ticketPoller{client: client, metrics: metrics, interval: interval, logger: log}
}

func (p *ticketPoller) PollOnce(ctx context.Context) (model.TicketCounts, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "ticket_poller"})

	tickets, err := p.client.ListOpenTickets(ctx)
	if err != nil {
		return model.TicketCounts{}, fmt.Errorf("listing open tickets: %w", err)
	}

	counts := aggregateTickets(tickets)
	if err := p.metrics.SetTickets(ctx, counts, counterSourcePoller); err != nil {
		return model.TicketCounts{}, fmt.Errorf("storing ticket counts: %w", err)
	}

	p.logger.InfoContext(ctx, "ticket counts refreshed",
		"open", counts.Open, "chat", counts.Chat, "email", counts.Email, "other", counts.Other)
	return counts, nil
}

func (p *ticketPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "ticket poller started", "interval", p.interval.String())

	// First refresh immediately so the dashboard is not empty until the
	// first tick.
	if _, err := p.PollOnce(ctx); err != nil {
		p.logger.ErrorContext(ctx, "initial ticket poll failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "ticket poller stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.ErrorContext(ctx, "ticket poll failed", "error", err)
			}
		}
	}
}

func aggregateTickets(tickets []helpdesk.Ticket) model.TicketCounts {
	counts := model.TicketCounts{Open: len(tickets)}

	for _, t := range tickets {
		switch strings.ToUpper(t.SourceType) {
		case "CHAT", "LIVE_CHAT", "MESSAGING":
			counts.Chat++
		case "EMAIL":
			counts.Email++
		default:
			counts.Other++
		}
	}

	return counts
}
