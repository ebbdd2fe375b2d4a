package models

import "time"

// DirectMessage is a 1:1 message between two users who are friends.
// Rows are immutable after creation except for the IsRead flag, which
// only ever transitions false to true when the receiver sees it.
type DirectMessage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   string    `gorm:"size:64;index:idx_direct_pair" json:"sender_id"`
	ReceiverID string    `gorm:"size:64;index:idx_direct_pair" json:"receiver_id"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	IsRead     bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Group is a named chat group. Mutable only by an admin member;
// deleting a group cascades to memberships and messages.
type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Avatar      string    `gorm:"size:512" json:"avatar"`
	CreatedBy   string    `gorm:"size:64;index" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember ties a user to a group. A non-empty group always keeps
// at least one member with IsAdmin set.
type GroupMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"index;uniqueIndex:idx_group_member" json:"group_id"`
	UserID   string    `gorm:"size:64;uniqueIndex:idx_group_member" json:"user_id"`
	IsAdmin  bool      `gorm:"not null;default:false" json:"is_admin"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// GroupMessage is an immutable message broadcast to a group.
type GroupMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uint      `gorm:"index" json:"group_id"`
	SenderID  string    `gorm:"size:64;index" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// GroupMessageRead is a per-recipient read marker. Group messages carry
// no single read flag; read state is the presence of one of these rows.
type GroupMessageRead struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}
