package model

import (
	"time"

	"github.com/google/uuid"
)

const RoutingKeyReportMutated = "report.mutated"

// ReportMutatedMessage is the change-stream payload emitted for every stored
// report mutation. Before is nil when the report was just created.
type ReportMutatedMessage struct {
	ReportID  uuid.UUID `json:"report_id"`
	Before    *Report   `json:"before,omitempty"`
	After     Report    `json:"after"`
	Timestamp time.Time `json:"timestamp"`
}
