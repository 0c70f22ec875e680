package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ProcessedMessageRepository remembers broker message ids that were fully handled.
type ProcessedMessageRepository struct {
	db *sql.DB
}

func NewProcessedMessageRepository(db *sql.DB) *ProcessedMessageRepository {
	return &ProcessedMessageRepository{db: db}
}

func (r *ProcessedMessageRepository) IsMessageProcessed(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT 1 FROM processed_messages WHERE message_id = $1`
	var exists int
	err := r.db.QueryRowContext(ctx, query, messageID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ProcessedMessageRepository) MarkMessageProcessed(ctx context.Context, messageID string) error {
	query := `INSERT INTO processed_messages (message_id) VALUES ($1) ON CONFLICT (message_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, messageID)
	return err
}
