package model

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ReportID  uuid.UUID `json:"report_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// TransitionEvent describes one observed status change of a report. It lives
// only for the duration of a single mutation handling.
type TransitionEvent struct {
	Before ReportStatus
	After  ReportStatus
	Report Report
}
