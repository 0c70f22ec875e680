package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"houmetna-service/internal/model"

	"github.com/google/uuid"
)

const maxStatusUpdateAttempts = 3

var (
	ErrReportNotFound   = errors.New("report not found")
	ErrConcurrentUpdate = errors.New("report modified concurrently")
)

const reportColumns = `id, owner_id, category, description, location_lat, location_lng,
	photo_urls, status, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type ReportRepository struct {
	db     *sql.DB
	outbox *OutboxRepository
}

func NewReportRepository(db *sql.DB, outbox *OutboxRepository) *ReportRepository {
	return &ReportRepository{db: db, outbox: outbox}
}

// Create inserts a new report and enqueues its report.mutated event (with no
// previous state) in the same transaction.
func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	photos, err := encodePhotos(report.PhotoURLs)
	if err != nil {
		return err
	}

	var lat, lng sql.NullFloat64
	if report.Location != nil {
		lat = sql.NullFloat64{Float64: report.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: report.Location.Lng, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO reports (id, owner_id, category, description, location_lat, location_lng,
			photo_urls, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
	`
	_, err = tx.ExecContext(ctx, query,
		report.ID,
		report.OwnerID,
		report.Category,
		report.Description,
		lat,
		lng,
		photos,
		report.Status,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	// timestamps come from the store clock
	stored, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, report.ID))
	if err != nil {
		return fmt.Errorf("reload report: %w", err)
	}
	*report = *stored

	msg := model.ReportMutatedMessage{
		ReportID:  report.ID,
		After:     *report,
		Timestamp: report.UpdatedAt,
	}
	if err := r.outbox.CreateInTransaction(ctx, tx, model.RoutingKeyReportMutated, msg); err != nil {
		return fmt.Errorf("enqueue mutation: %w", err)
	}

	return tx.Commit()
}

func (r *ReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return report, nil
}

// Returns all reports created by a specific user, newest first.
func (r *ReportRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE owner_id = $1 ORDER BY created_at DESC, id`
	return r.queryReports(ctx, query, ownerID)
}

// Returns every report, optionally filtered by status, newest first.
func (r *ReportRepository) FindAll(ctx context.Context, status *model.ReportStatus) ([]model.Report, error) {
	if status != nil {
		query := `SELECT ` + reportColumns + ` FROM reports WHERE status = $1 ORDER BY created_at DESC, id`
		return r.queryReports(ctx, query, *status)
	}
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC, id`
	return r.queryReports(ctx, query)
}

// UpdateStatus sets a new status and enqueues the report.mutated event carrying
// both states in one transaction. The write is conditional on the version read
// inside the transaction, so two concurrent updates never share a "before" state.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ReportStatus) (before, after *model.Report, err error) {
	for attempt := 0; attempt < maxStatusUpdateAttempts; attempt++ {
		before, after, err = r.updateStatusOnce(ctx, id, status)
		if !errors.Is(err, ErrConcurrentUpdate) {
			return before, after, err
		}
	}
	return nil, nil, err
}

func (r *ReportRepository) updateStatusOnce(ctx context.Context, id uuid.UUID, status model.ReportStatus) (*model.Report, *model.Report, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	before, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrReportNotFound
		}
		return nil, nil, err
	}

	query := `
		UPDATE reports
		SET status = $1, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND version = $3
	`
	result, err := tx.ExecContext(ctx, query, status, id, before.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("update status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, nil, fmt.Errorf("update status: %w", err)
	} else if n == 0 {
		return nil, nil, ErrConcurrentUpdate
	}

	after, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		return nil, nil, fmt.Errorf("reload report: %w", err)
	}

	msg := model.ReportMutatedMessage{
		ReportID:  id,
		Before:    before,
		After:     *after,
		Timestamp: after.UpdatedAt,
	}
	if err := r.outbox.CreateInTransaction(ctx, tx, model.RoutingKeyReportMutated, msg); err != nil {
		return nil, nil, fmt.Errorf("enqueue mutation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	return before, after, nil
}

func (r *ReportRepository) queryReports(ctx context.Context, query string, args ...any) ([]model.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reports, nil
}

func scanReport(row rowScanner) (*model.Report, error) {
	report := &model.Report{}
	var lat, lng sql.NullFloat64
	var photos string
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&report.ID,
		&report.OwnerID,
		&report.Category,
		&report.Description,
		&lat,
		&lng,
		&photos,
		&report.Status,
		&report.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		report.Location = &model.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if err := json.Unmarshal([]byte(photos), &report.PhotoURLs); err != nil {
		return nil, fmt.Errorf("decode photo_urls: %w", err)
	}
	if report.PhotoURLs == nil {
		report.PhotoURLs = []string{}
	}
	report.CreatedAt = createdAt.UTC()
	report.UpdatedAt = updatedAt.UTC()

	return report, nil
}

func encodePhotos(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("encode photo_urls: %w", err)
	}
	return string(b), nil
}
