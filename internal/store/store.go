package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store code
// runs inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Stores struct {
	db DBTX
}

func NewStores(db DBTX) *Stores {
	return &Stores{db: db}
}

func (s *Stores) EventLogs() EventLogStore {
	return newEventLogStore(s.db)
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.db)
}

func (s *Stores) Metrics() MetricsStore {
	return newMetricsStore(s.db)
}

func (s *Stores) Alerts() AlertStore {
	return newAlertStore(s.db)
}
