package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DeviceTokenRepository stores each user's push endpoints as one row per
// (user, token). Add and remove are single statements, so concurrent callers
// never overwrite each other's changes.
type DeviceTokenRepository struct {
	db *sql.DB
}

func NewDeviceTokenRepository(db *sql.DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// AddToken is a set-union: inserting a token the user already has is a no-op.
func (r *DeviceTokenRepository) AddToken(ctx context.Context, userID uuid.UUID, token string) error {
	query := `
		INSERT INTO device_tokens (user_id, token)
		VALUES ($1, $2)
		ON CONFLICT (user_id, token) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("add device token: %w", err)
	}
	return nil
}

// RemoveToken is a set-difference: removing an absent token is a no-op.
func (r *DeviceTokenRepository) RemoveToken(ctx context.Context, userID uuid.UUID, token string) error {
	query := `DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("remove device token: %w", err)
	}
	return nil
}

func (r *DeviceTokenRepository) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `SELECT token FROM device_tokens WHERE user_id = $1 ORDER BY created_at, token`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}
