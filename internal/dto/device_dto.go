package dto

import (
	"time"

	"github.com/sortie-social/sortie-api/internal/models"
)

// DeviceRegisterRequest is the payload to register a push token.
type DeviceRegisterRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

// DeviceTokenResponse confirms the registered push address.
type DeviceTokenResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDeviceTokenResponse converts a model into a DTO.
func NewDeviceTokenResponse(token models.DeviceToken) DeviceTokenResponse {
	return DeviceTokenResponse{
		UserID:    token.UserID,
		Token:     token.Token,
		UpdatedAt: token.UpdatedAt,
	}
}

// ActiveUsersResponse lists users whose device token was refreshed
// within the requested window. A presence proxy, not a live signal.
type ActiveUsersResponse struct {
	Window  string   `json:"window"`
	UserIDs []string `json:"user_ids"`
}
