package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leecorbin/support-alert-system/internal/model"
)

type eventLogStore struct {
	db DBTX
}

func newEventLogStore(db DBTX) EventLogStore {
	return &eventLogStore{db: db}
}

const eventLogColumns = `id, conversation_id, event_type, property_name, property_value, payload, dedupe_key, observed_at, processed_at, processing_error, created_at`

func (s *eventLogStore) CreateOrGet(ctx context.Context, log *model.EventLog) (*model.EventLog, bool, error) {
	// ON CONFLICT DO UPDATE with a no-op change so RETURNING always yields
	// the surviving row; a returned id differing from ours means the event
	// was already logged.
	row := s.db.QueryRow(ctx, `
		INSERT INTO event_logs (id, conversation_id, event_type, property_name, property_value, payload, dedupe_key, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) DO UPDATE SET dedupe_key = event_logs.dedupe_key
		RETURNING `+eventLogColumns,
		log.ID, log.ConversationID, log.EventType, log.PropertyName, log.PropertyValue, []byte(log.Payload), log.DedupeKey, log.ObservedAt,
	)

	stored, err := scanEventLog(row)
	if err != nil {
		return nil, false, fmt.Errorf("upserting event log: %w", err)
	}
	created := stored.ID == log.ID
	return stored, created, nil
}

func (s *eventLogStore) GetByID(ctx context.Context, id int64) (*model.EventLog, error) {
	row := s.db.QueryRow(ctx, `SELECT `+eventLogColumns+` FROM event_logs WHERE id = $1`, id)
	stored, err := scanEventLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return stored, nil
}

func (s *eventLogStore) ListByConversation(ctx context.Context, conversationID string) ([]model.EventLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventLogColumns+`
		FROM event_logs
		WHERE conversation_id = $1
		ORDER BY observed_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	return collectEventLogs(rows)
}

func (s *eventLogStore) ListRecentByConversation(ctx context.Context, conversationID string, limit int32) ([]model.EventLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventLogColumns+`
		FROM event_logs
		WHERE conversation_id = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectEventLogs(rows)
}

func (s *eventLogStore) ListUnprocessed(ctx context.Context, limit int32) ([]model.EventLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventLogColumns+`
		FROM event_logs
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectEventLogs(rows)
}

func (s *eventLogStore) MarkProcessed(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `UPDATE event_logs SET processed_at = now(), processing_error = NULL WHERE id = $1`, id)
	return err
}

func (s *eventLogStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.Exec(ctx, `UPDATE event_logs SET processed_at = now(), processing_error = $2 WHERE id = $1`, id, errMsg)
	return err
}

func scanEventLog(row pgx.Row) (*model.EventLog, error) {
	var e model.EventLog
	var payload []byte
	if err := row.Scan(
		&e.ID, &e.ConversationID, &e.EventType, &e.PropertyName, &e.PropertyValue,
		&payload, &e.DedupeKey, &e.ObservedAt, &e.ProcessedAt, &e.ProcessingError, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

func collectEventLogs(rows pgx.Rows) ([]model.EventLog, error) {
	defer rows.Close()

	var result []model.EventLog
	for rows.Next() {
		e, err := scanEventLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}
