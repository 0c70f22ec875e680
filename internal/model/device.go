package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceToken is one push endpoint of a user. A token appears at most once per user.
type DeviceToken struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterDeviceRequest struct {
	Token string `json:"token"`
}

type DeviceListResponse struct {
	Tokens []string `json:"tokens"`
	Total  int      `json:"total"`
}
