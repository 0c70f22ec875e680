package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	OutboxPending    = "pending"
	OutboxPublishing = "publishing"
	OutboxPublished  = "published"
	OutboxFailed     = "failed"

	maxOutboxRetries = 5
)

type OutboxMessage struct {
	ID          uuid.UUID       `json:"id"`
	RoutingKey  string          `json:"routing_key"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	RetryCount  int             `json:"retry_count"`
	LastError   *string         `json:"last_error,omitempty"`
	Status      string          `json:"status"`
}

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// CreateInTransaction records a message to publish once tx commits.
func (r *OutboxRepository) CreateInTransaction(ctx context.Context, tx *sql.Tx, routingKey string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO outbox_messages (id, routing_key, payload, status)
		VALUES ($1, $2, $3, 'pending')
	`
	_, err = tx.ExecContext(ctx, query, uuid.New(), routingKey, string(payloadBytes))
	return err
}

// GetPendingMessages returns messages waiting to be published: pending rows
// and rows whose publishing claim has expired.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]OutboxMessage, error) {
	query := `
		SELECT id, routing_key, payload, created_at, retry_count, last_error, status
		FROM outbox_messages
		WHERE status = 'pending' OR (status = 'publishing' AND claim_expires_at < $2)
		ORDER BY created_at ASC, id
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var payload string
		var lastError sql.NullString
		err := rows.Scan(
			&m.ID,
			&m.RoutingKey,
			&payload,
			&m.CreatedAt,
			&m.RetryCount,
			&lastError,
			&m.Status,
		)
		if err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		if lastError.Valid {
			m.LastError = &lastError.String
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// ClaimPending marks up to limit pending messages as being published by the
// caller for the duration of lease and returns them. A row is claimed by at
// most one worker at a time; a claim that is neither published nor failed
// before the lease runs out becomes claimable again.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error) {
	candidates, err := r.GetPendingMessages(ctx, limit)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE outbox_messages
		SET status = 'publishing', claim_expires_at = $2
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'publishing' AND claim_expires_at < $3))
	`
	claimed := make([]OutboxMessage, 0, len(candidates))
	for _, m := range candidates {
		now := time.Now()
		result, err := r.db.ExecContext(ctx, query, m.ID, now.Add(lease).UnixMilli(), now.UnixMilli())
		if err != nil {
			return claimed, fmt.Errorf("claim outbox message %s: %w", m.ID, err)
		}
		if n, err := result.RowsAffected(); err != nil || n == 0 {
			continue
		}
		m.Status = OutboxPublishing
		claimed = append(claimed, m)
	}
	return claimed, nil
}

func (r *OutboxRepository) MarkAsPublished(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_messages
		SET status = 'published', published_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// MarkAsFailed bumps the retry counter; the message stays pending until it
// has failed maxOutboxRetries times.
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, errMsg, maxOutboxRetries)
	return err
}

func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM outbox_messages
		WHERE status = 'published' AND published_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OutboxRepository) GetStats(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM outbox_messages
		GROUP BY status
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{OutboxPending: 0, OutboxPublishing: 0, OutboxPublished: 0, OutboxFailed: 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}

	return stats, rows.Err()
}
