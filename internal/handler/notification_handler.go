package handler

import (
	"net/http"
	"strconv"

	"houmetna-service/internal/middleware"
	"houmetna-service/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// Handles GET /notifications?unread=true
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))

	response, err := h.notificationService.GetUserNotifications(c.Request.Context(), middleware.GetCaller(c), unreadOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Handles GET /notifications/stream - server-sent events of new notifications.
func (h *NotificationHandler) StreamNotifications(c *gin.Context) {
	caller := middleware.GetCaller(c)
	if !caller.Authenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := h.notificationService.RegisterClient(caller.UserID)
	defer h.notificationService.UnregisterClient(client)

	c.SSEvent("connected", gin.H{"message": "SSE connection established"})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case notification, ok := <-client.Channel:
			if !ok {
				return
			}
			c.SSEvent("notification", notification)
			c.Writer.Flush()
		}
	}
}

// Handles GET /notifications/:id
func (h *NotificationHandler) GetNotification(c *gin.Context) {
	notification, err := h.notificationService.GetNotification(c.Request.Context(), middleware.GetCaller(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, notification)
}

// Handles PATCH /notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAsRead(c.Request.Context(), middleware.GetCaller(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

// Handles PATCH /notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), middleware.GetCaller(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read"})
}
