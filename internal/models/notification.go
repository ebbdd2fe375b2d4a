package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is the in-app record of a notification rendered for a
// user. One row is written per recipient regardless of whether the
// matching push delivery succeeded.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;index" json:"user_id"`
	Type      string            `gorm:"size:64" json:"type"`
	Title     string            `gorm:"size:255" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Payload   datatypes.JSONMap `gorm:"type:json" json:"payload"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
