package models

import "time"

// User mirrors the identity service's users table. This core only ever
// reads it, for existence checks and display names.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Friendship mirrors the identity service's symmetric friend relation.
// A pair may be stored in either column order.
type Friendship struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;uniqueIndex:idx_friend_pair" json:"user_id"`
	FriendID  string    `gorm:"size:64;uniqueIndex:idx_friend_pair" json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Venue and Event are read-only lookups used to render notification
// text for booking and listing events.
type Venue struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255" json:"name"`
}

// Event is a scheduled happening at a venue.
type Event struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	VenueID uint   `gorm:"index" json:"venue_id"`
	Name    string `gorm:"size:255" json:"name"`
}
