package service

import (
	"context"
	"errors"
	"strings"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/model"
	"houmetna-service/internal/repository"

	"github.com/google/uuid"
)

const (
	maxDescriptionLength = 2000
	maxPhotos            = 10
)

type ReportService struct {
	reportRepo *repository.ReportRepository
}

func NewReportService(reportRepo *repository.ReportRepository) *ReportService {
	return &ReportService{reportRepo: reportRepo}
}

// CreateReport persists a new report owned by the caller with status new.
func (s *ReportService) CreateReport(ctx context.Context, caller model.Caller, req *model.CreateReportRequest) (*model.Report, error) {
	const op = "report.create"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}
	if err := validateCreateRequest(op, req); err != nil {
		return nil, err
	}

	photos := make([]string, 0, len(req.PhotoURLs))
	photos = append(photos, req.PhotoURLs...)

	report := &model.Report{
		ID:          uuid.New(),
		OwnerID:     caller.UserID,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Location:    req.Location,
		PhotoURLs:   photos,
		Status:      model.StatusNew,
	}

	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, apperror.StoreFailure(op, err)
	}

	return report, nil
}

// GetReport returns a report to its owner or to an admin.
func (s *ReportService) GetReport(ctx context.Context, caller model.Caller, id string) (*model.Report, error) {
	const op = "report.get"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}
	reportID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.InvalidArgument(op, "invalid report id")
	}

	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, reportLookupError(op, err)
	}

	if report.OwnerID != caller.UserID && !caller.IsAdmin() {
		return nil, apperror.PermissionDenied(op, "report belongs to another user")
	}

	return report, nil
}

func (s *ReportService) GetMyReports(ctx context.Context, caller model.Caller) (*model.ReportListResponse, error) {
	const op = "report.list_mine"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}

	reports, err := s.reportRepo.FindByOwnerID(ctx, caller.UserID)
	if err != nil {
		return nil, apperror.StoreFailure(op, err)
	}

	return &model.ReportListResponse{
		Reports: reports,
		Total:   len(reports),
	}, nil
}

// GetReports lists every report for admins, optionally filtered by status.
func (s *ReportService) GetReports(ctx context.Context, caller model.Caller, status string) (*model.ReportListResponse, error) {
	const op = "report.list"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}
	if !caller.IsAdmin() {
		return nil, apperror.PermissionDenied(op, "only admin can list all reports")
	}

	var filter *model.ReportStatus
	if status != "" {
		st := model.ReportStatus(status)
		if !st.Valid() {
			return nil, apperror.InvalidArgument(op, "invalid status")
		}
		filter = &st
	}

	reports, err := s.reportRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, apperror.StoreFailure(op, err)
	}

	return &model.ReportListResponse{
		Reports: reports,
		Total:   len(reports),
	}, nil
}

// UpdateReportStatus changes the status of a report. Identity, role, arguments
// and existence are checked in that order; nothing is written unless all pass.
// The stored change emits the report mutation that drives notifications.
func (s *ReportService) UpdateReportStatus(ctx context.Context, caller model.Caller, id string, status model.ReportStatus) (*model.Report, error) {
	const op = "report.update_status"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}
	if !caller.IsAdmin() {
		return nil, apperror.PermissionDenied(op, "only admin can update report status")
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperror.InvalidArgument(op, "report id is required")
	}
	reportID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.InvalidArgument(op, "invalid report id")
	}
	if status == "" {
		return nil, apperror.InvalidArgument(op, "status is required")
	}
	if !status.Valid() {
		return nil, apperror.InvalidArgument(op, "invalid status")
	}

	_, after, err := s.reportRepo.UpdateStatus(ctx, reportID, status)
	if err != nil {
		return nil, reportLookupError(op, err)
	}

	return after, nil
}

func validateCreateRequest(op string, req *model.CreateReportRequest) error {
	if req == nil {
		return apperror.InvalidArgument(op, "request body is required")
	}
	if !req.Category.Valid() {
		return apperror.InvalidArgument(op, "invalid category")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return apperror.InvalidArgument(op, "description is required")
	}
	if len([]rune(description)) > maxDescriptionLength {
		return apperror.InvalidArgument(op, "description is too long")
	}
	if req.Location != nil {
		if req.Location.Lat < -90 || req.Location.Lat > 90 || req.Location.Lng < -180 || req.Location.Lng > 180 {
			return apperror.InvalidArgument(op, "location out of range")
		}
	}
	if len(req.PhotoURLs) > maxPhotos {
		return apperror.InvalidArgument(op, "too many photos")
	}
	for _, url := range req.PhotoURLs {
		if strings.TrimSpace(url) == "" {
			return apperror.InvalidArgument(op, "blank photo url")
		}
	}
	return nil
}

func reportLookupError(op string, err error) error {
	if errors.Is(err, repository.ErrReportNotFound) {
		return apperror.NotFound(op, "report not found")
	}
	return apperror.StoreFailure(op, err)
}
