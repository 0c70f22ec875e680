package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"houmetna-service/internal/model"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const notificationListLimit = 50

var ErrNotificationNotFound = errors.New("notification not found")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateIfAbsent inserts n unless a notification with the same ID already
// exists. It reports whether a row was written; on insert n.CreatedAt is set
// from the store clock. The insert and the reload commit together, so a
// failed call never leaves the row behind.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, n *model.Notification) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO notifications (id, user_id, report_id, title, body, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.ReportID,
		n.Title,
		n.Body,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM notifications WHERE id = $1`, n.ID).Scan(&createdAt)
	if err != nil {
		return false, fmt.Errorf("reload notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit notification: %w", err)
	}

	n.IsRead = false
	n.CreatedAt = createdAt.UTC()
	return inserted > 0, nil
}

func (r *NotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query, args, err := notificationSelect().Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return nil, err
	}

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

// GetByUserID returns the newest notifications of a user, optionally only the unread ones.
func (r *NotificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]model.Notification, error) {
	builder := notificationSelect().
		Where(sq.Eq{"user_id": userID.String()}).
		OrderBy("created_at DESC", "id").
		Limit(notificationListLimit)
	if unreadOnly {
		builder = builder.Where(sq.Eq{"is_read": false})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}

	return notifications, rows.Err()
}

func (r *NotificationRepository) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func notificationSelect() sq.SelectBuilder {
	return psql.Select("id", "user_id", "report_id", "title", "body", "is_read", "created_at").
		From("notifications")
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.ReportID,
		&n.Title,
		&n.Body,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}
