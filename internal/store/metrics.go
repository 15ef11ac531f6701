package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leecorbin/support-alert-system/internal/model"
)

type metricsStore struct {
	db DBTX
}

func newMetricsStore(db DBTX) MetricsStore {
	return &metricsStore{db: db}
}

const metricsColumns = `open_tickets, chat_tickets, email_tickets, other_tickets, active_sessions, escalated_sessions, source, last_updated`

func (s *metricsStore) Get(ctx context.Context) (*model.MetricsSnapshot, error) {
	row := s.db.QueryRow(ctx, `SELECT `+metricsColumns+` FROM metrics_snapshot WHERE id = 1`)
	return scanMetrics(row)
}

func (s *metricsStore) IncrementEscalated(ctx context.Context, source string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		UPDATE metrics_snapshot
		SET escalated_sessions = COALESCE(escalated_sessions, 0) + 1,
		    source = $1, last_updated = now()
		WHERE id = 1
		RETURNING escalated_sessions`,
		source,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing escalated sessions: %w", err)
	}
	return count, nil
}

func (s *metricsStore) DecrementEscalated(ctx context.Context, source string) (int, error) {
	// Floored at zero: the detector cannot guarantee a matching increment
	// exists for every decrement under all delivery orders.
	var count int
	err := s.db.QueryRow(ctx, `
		UPDATE metrics_snapshot
		SET escalated_sessions = GREATEST(COALESCE(escalated_sessions, 0) - 1, 0),
		    source = $1, last_updated = now()
		WHERE id = 1
		RETURNING escalated_sessions`,
		source,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("decrementing escalated sessions: %w", err)
	}
	return count, nil
}

func (s *metricsStore) SetEscalated(ctx context.Context, count int, source string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE metrics_snapshot
		SET escalated_sessions = $1, source = $2, last_updated = now()
		WHERE id = 1`,
		count, source,
	)
	return err
}

func (s *metricsStore) SetActive(ctx context.Context, count *int, source string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE metrics_snapshot
		SET active_sessions = $1, source = $2, last_updated = now()
		WHERE id = 1`,
		count, source,
	)
	return err
}

func (s *metricsStore) SetTickets(ctx context.Context, tickets model.TicketCounts, source string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE metrics_snapshot
		SET open_tickets = $1, chat_tickets = $2, email_tickets = $3, other_tickets = $4,
		    source = $5, last_updated = now()
		WHERE id = 1`,
		tickets.Open, tickets.Chat, tickets.Email, tickets.Other, source,
	)
	return err
}

func (s *metricsStore) ResetEscalated(ctx context.Context, source string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE metrics_snapshot
		SET escalated_sessions = 0, source = $1, last_updated = now()
		WHERE id = 1`,
		source,
	)
	return err
}

func scanMetrics(row pgx.Row) (*model.MetricsSnapshot, error) {
	var m model.MetricsSnapshot
	if err := row.Scan(
		&m.Tickets.Open, &m.Tickets.Chat, &m.Tickets.Email, &m.Tickets.Other,
		&m.ActiveSessions, &m.EscalatedSessions, &m.Source, &m.LastUpdated,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
