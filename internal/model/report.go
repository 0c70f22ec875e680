package model

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	StatusNew        ReportStatus = "new"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Label is the human-readable title used for status notifications.
func (s ReportStatus) Label() string {
	switch s {
	case StatusNew:
		return "Report received"
	case StatusInProgress:
		return "Report in progress"
	case StatusResolved:
		return "Report resolved"
	default:
		return "Report updated"
	}
}

type Category string

const (
	CategoryVoirie    Category = "voirie"
	CategoryEclairage Category = "eclairage"
	CategoryDechets   Category = "dechets"
	CategoryAutre     Category = "autre"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryVoirie, CategoryEclairage, CategoryDechets, CategoryAutre:
		return true
	}
	return false
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Report struct {
	ID          uuid.UUID    `json:"id"`
	OwnerID     uuid.UUID    `json:"owner_id"`
	Category    Category     `json:"category"`
	Description string       `json:"description"`
	Location    *Location    `json:"location,omitempty"`
	PhotoURLs   []string     `json:"photo_urls"`
	Status      ReportStatus `json:"status"`
	// Version increases by one on every stored mutation of the report.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request/Response DTOs
type CreateReportRequest struct {
	Category    Category  `json:"category" binding:"required"`
	Description string    `json:"description" binding:"required"`
	Location    *Location `json:"location"`
	PhotoURLs   []string  `json:"photo_urls"`
}

type UpdateStatusRequest struct {
	Status ReportStatus `json:"status"`
}

type ReportListResponse struct {
	Reports []Report `json:"reports"`
	Total   int      `json:"total"`
}
