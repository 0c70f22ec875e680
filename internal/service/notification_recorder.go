package service

import (
	"context"
	"fmt"
	"log/slog"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/model"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

// bodyDescriptionLimit is the number of characters of the report description
// embedded in a notification body.
const bodyDescriptionLimit = 60

var notificationNamespace = uuid.MustParse("6f1c2a9e-4b7d-4c1e-9a55-0d3e8b2f7c41")

type NotificationStore interface {
	CreateIfAbsent(ctx context.Context, n *model.Notification) (bool, error)
}

type RecordResult struct {
	Notification *model.Notification
	// Created is false when the notification for this transition already existed.
	Created bool
}

// NotificationRecorder persists one notification per status transition.
type NotificationRecorder struct {
	store NotificationStore
}

func NewNotificationRecorder(store NotificationStore) *NotificationRecorder {
	return &NotificationRecorder{store: store}
}

// Record writes the notification for ev. Recording the same transition twice
// stores one row; the second call returns Created=false.
func (r *NotificationRecorder) Record(ctx context.Context, ev model.TransitionEvent) (RecordResult, error) {
	n := BuildNotification(ev)

	created, err := r.store.CreateIfAbsent(ctx, n)
	if err != nil {
		err = apperror.StoreFailure("recorder.record", err)
		sentry.CaptureException(err)
		slog.ErrorContext(ctx, "recorder: persist notification",
			"report_id", ev.Report.ID,
			"notification_id", n.ID,
			"error", err,
		)
		return RecordResult{}, err
	}

	return RecordResult{Notification: n, Created: created}, nil
}

// BuildNotification derives the notification for a transition. Its ID depends
// only on the transition, so redelivered events map to the same row.
func BuildNotification(ev model.TransitionEvent) *model.Notification {
	return &model.Notification{
		ID:       NotificationID(ev.Report.ID, ev.Before, ev.After, ev.Report.Version),
		UserID:   ev.Report.OwnerID,
		ReportID: ev.Report.ID,
		Title:    ev.After.Label(),
		Body:     NotificationBody(ev.Report.Description, ev.After),
	}
}

func NotificationID(reportID uuid.UUID, before, after model.ReportStatus, version int64) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%s|%d", reportID, before, after, version)
	return uuid.NewSHA1(notificationNamespace, []byte(key))
}

// NotificationBody returns `"<description>" is now <status>` with the
// description cut to its first 60 characters.
func NotificationBody(description string, status model.ReportStatus) string {
	return fmt.Sprintf(`"%s" is now %s`, truncateRunes(description, bodyDescriptionLimit), status)
}

func truncateRunes(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
