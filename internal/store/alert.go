package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/leecorbin/support-alert-system/internal/model"
)

type alertStore struct {
	db DBTX
}

func newAlertStore(db DBTX) AlertStore {
	return &alertStore{db: db}
}

func (s *alertStore) Append(ctx context.Context, alert *model.Alert) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO alerts (id, conversation_id, class, message)
		VALUES ($1, $2, $3, $4)`,
		alert.ID, alert.ConversationID, string(alert.Class), alert.Message,
	)
	return err
}

func (s *alertStore) ListRecent(ctx context.Context, limit int32) ([]model.Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, class, message, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	var class string
	if err := row.Scan(&a.ID, &a.ConversationID, &class, &a.Message, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Class = model.AlertClass(class)
	return &a, nil
}
