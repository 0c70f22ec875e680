package handler

import (
	"net/http"

	"houmetna-service/internal/middleware"
	"houmetna-service/internal/model"
	"houmetna-service/internal/service"

	"github.com/gin-gonic/gin"
)

// DeviceHandler exposes the caller's push token registry.
type DeviceHandler struct {
	registry *service.DeviceRegistry
}

func NewDeviceHandler(registry *service.DeviceRegistry) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// Handles POST /devices
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.RegisterDeviceToken(c.Request.Context(), middleware.GetCaller(c), req.Token); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

// Handles DELETE /devices/:token
func (h *DeviceHandler) UnregisterDevice(c *gin.Context) {
	if err := h.registry.UnregisterDeviceToken(c.Request.Context(), middleware.GetCaller(c), c.Param("token")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device unregistered"})
}

// Handles GET /devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	caller := middleware.GetCaller(c)
	tokens, err := h.registry.ListTokens(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.DeviceListResponse{
		Tokens: tokens,
		Total:  len(tokens),
	})
}
