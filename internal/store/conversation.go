package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leecorbin/support-alert-system/internal/model"
)

type conversationStore struct {
	db DBTX
}

func newConversationStore(db DBTX) ConversationStore {
	return &conversationStore{db: db}
}

const conversationColumns = `conversation_id, current_assignee, has_had_bot_assignment, escalated, escalated_from, escalated_to, escalated_at, escalation_counted, status, closed_at, version, last_updated`

func (s *conversationStore) GetByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = $1`, conversationID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (s *conversationStore) Merge(ctx context.Context, patch model.ConversationPatch) (*model.Conversation, error) {
	if patch.ConversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	// Field-level merge: nil patch fields keep the stored value, and the
	// sticky booleans OR in so a late bot-assignment event can never clear
	// them. EscalationCounted is a plain overwrite because closure must be
	// able to flip it back to false.
	row := s.db.QueryRow(ctx, `
		INSERT INTO conversations (
			conversation_id, current_assignee, has_had_bot_assignment, escalated,
			escalated_from, escalated_to, escalated_at, escalation_counted, status, closed_at
		)
		VALUES ($1, $2, COALESCE($3, FALSE), COALESCE($4, FALSE), $5, $6, $7, COALESCE($8, FALSE), COALESCE($9, 'OPEN'), $10)
		ON CONFLICT (conversation_id) DO UPDATE SET
			current_assignee       = COALESCE($2, conversations.current_assignee),
			has_had_bot_assignment = conversations.has_had_bot_assignment OR COALESCE($3, FALSE),
			escalated              = conversations.escalated OR COALESCE($4, FALSE),
			escalated_from         = COALESCE($5, conversations.escalated_from),
			escalated_to           = COALESCE($6, conversations.escalated_to),
			escalated_at           = COALESCE($7, conversations.escalated_at),
			escalation_counted     = COALESCE($8, conversations.escalation_counted),
			status                 = COALESCE($9, conversations.status),
			closed_at              = COALESCE($10, conversations.closed_at),
			version                = conversations.version + 1,
			last_updated           = now()
		RETURNING `+conversationColumns,
		patch.ConversationID, patch.CurrentAssignee, patch.HasHadBotAssignment, patch.Escalated,
		patch.EscalatedFrom, patch.EscalatedTo, patch.EscalatedAt, patch.EscalationCounted,
		statusArg(patch.Status), patch.ClosedAt,
	)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("merging conversation: %w", err)
	}
	return conv, nil
}

func (s *conversationStore) CountCountedEscalations(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM conversations
		WHERE escalated AND escalation_counted AND status = 'OPEN'`,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *conversationStore) ClearCountedFlags(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET escalation_counted = FALSE, version = version + 1, last_updated = now()
		WHERE escalation_counted`)
	return err
}

func (s *conversationStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM conversations`)
	return err
}

func statusArg(status *model.ConversationStatus) *string {
	if status == nil {
		return nil
	}
	str := string(*status)
	return &str
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	var status string
	if err := row.Scan(
		&c.ConversationID, &c.CurrentAssignee, &c.HasHadBotAssignment, &c.Escalated,
		&c.EscalatedFrom, &c.EscalatedTo, &c.EscalatedAt, &c.EscalationCounted,
		&status, &c.ClosedAt, &c.Version, &c.LastUpdated,
	); err != nil {
		return nil, err
	}
	c.Status = model.ConversationStatus(status)
	return &c, nil
}
