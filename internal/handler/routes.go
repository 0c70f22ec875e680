package handler

import (
	"houmetna-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Reports       *ReportHandler
	Devices       *DeviceHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
}

// RegisterRoutes mounts every endpoint on r. All routes except /health
// require a valid JWT.
func RegisterRoutes(r *gin.Engine, h Handlers, jwtSecret string) {
	r.GET("/health", h.Reports.Health)

	auth := r.Group("", middleware.JWTAuth(jwtSecret))

	reports := auth.Group("/reports")
	{
		reports.POST("", h.Reports.CreateReport)
		reports.GET("", h.Reports.GetReports)
		reports.GET("/my", h.Reports.GetMyReports)
		reports.GET("/:id", h.Reports.GetReportByID)
		reports.PATCH("/:id/status", h.Reports.UpdateStatus)
	}

	devices := auth.Group("/devices")
	{
		devices.GET("", h.Devices.ListDevices)
		devices.POST("", h.Devices.RegisterDevice)
		devices.DELETE("/:token", h.Devices.UnregisterDevice)
	}

	notifications := auth.Group("/notifications")
	{
		notifications.GET("", h.Notifications.GetNotifications)
		notifications.GET("/stream", h.Notifications.StreamNotifications)
		notifications.GET("/:id", h.Notifications.GetNotification)
		notifications.PATCH("/:id/read", h.Notifications.MarkAsRead)
		notifications.PATCH("/read-all", h.Notifications.MarkAllAsRead)
	}

	auth.GET("/admin/outbox/stats", h.Admin.OutboxStats)
}
