package handler

import (
	"log/slog"
	"net/http"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/middleware"
	"houmetna-service/internal/model"
	"houmetna-service/internal/service"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService *service.ReportService
}

func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Health check endpoint for service status monitoring.
func (h *ReportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Handles POST /reports - creates a report owned by the caller.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req model.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.reportService.CreateReport(c.Request.Context(), middleware.GetCaller(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Report created successfully",
		"report":  report,
	})
}

// Handles GET /reports - admin listing, optional ?status= filter.
func (h *ReportHandler) GetReports(c *gin.Context) {
	response, err := h.reportService.GetReports(c.Request.Context(), middleware.GetCaller(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles GET /reports/my - returns the caller's reports.
func (h *ReportHandler) GetMyReports(c *gin.Context) {
	response, err := h.reportService.GetMyReports(c.Request.Context(), middleware.GetCaller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Handles GET /reports/:id - visible to the owner and to admins.
func (h *ReportHandler) GetReportByID(c *gin.Context) {
	report, err := h.reportService.GetReport(c.Request.Context(), middleware.GetCaller(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handles PATCH /reports/:id/status - admin only. The stored change triggers
// the owner's notification asynchronously.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// role is checked before arguments, so an unreadable body is treated as a missing status
		req.Status = ""
	}

	report, err := h.reportService.UpdateReportStatus(c.Request.Context(), middleware.GetCaller(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Status updated successfully",
		"report":  report,
	})
}

// respondError writes err as {"error": msg} with the status of its kind.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "handler: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(status, gin.H{"error": apperror.KindOf(err).String()})
		return
	}
	c.JSON(status, gin.H{"error": apperror.Message(err)})
}
