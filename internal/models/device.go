package models

import "time"

// DeviceToken maps a user to their single active push-delivery address.
// Registering a new token replaces any prior row for the user, so the
// unique index on UserID is load-bearing.
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;uniqueIndex" json:"user_id"`
	Token     string    `gorm:"size:512;not null" json:"token"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}
