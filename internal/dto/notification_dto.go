package dto

import (
	"time"

	"github.com/sortie-social/sortie-api/internal/models"
)

// NotificationResponse represents an in-app notification row returned
// to clients.
type NotificationResponse struct {
	ID        uint              `json:"id"`
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Payload   map[string]string `json:"payload,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	response := NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
	if model.Payload != nil {
		response.Payload = make(map[string]string, len(model.Payload))
		for key, value := range model.Payload {
			if str, ok := value.(string); ok {
				response.Payload[key] = str
			}
		}
	}
	return response
}

// BroadcastRequest is an operator-initiated announcement push. When
// UserIDs is empty the audience defaults to recently active users.
type BroadcastRequest struct {
	Title   string                 `json:"title" validate:"required,max=200"`
	Body    string                 `json:"body" validate:"required,max=2000"`
	Data    map[string]interface{} `json:"data"`
	UserIDs []string               `json:"user_ids" validate:"dive,max=64"`
}

// BroadcastReportResponse summarizes a broadcast's delivery outcomes.
type BroadcastReportResponse struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Stale     int `json:"stale"`
	Failed    int `json:"failed"`
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
