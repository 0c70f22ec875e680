package handler

import (
	"context"
	"net/http"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type OutboxStats interface {
	GetStats(ctx context.Context) (map[string]int, error)
}

type AdminHandler struct {
	outbox OutboxStats
}

func NewAdminHandler(outbox OutboxStats) *AdminHandler {
	return &AdminHandler{outbox: outbox}
}

// Handles GET /admin/outbox/stats - message counts per outbox status.
func (h *AdminHandler) OutboxStats(c *gin.Context) {
	if !middleware.GetCaller(c).IsAdmin() {
		respondError(c, apperror.PermissionDenied("admin.outbox_stats", "admin role required"))
		return
	}

	stats, err := h.outbox.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, apperror.StoreFailure("admin.outbox_stats", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"outbox": stats})
}
