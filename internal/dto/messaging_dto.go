package dto

import (
	"time"

	"github.com/sortie-social/sortie-api/internal/models"
)

// DirectSendRequest is the payload to send a 1:1 message.
type DirectSendRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required,max=64"`
	Body       string `json:"body" validate:"required,min=1,max=4000"`
}

// GroupSendRequest is the payload to post into a group.
type GroupSendRequest struct {
	GroupID uint   `json:"group_id" validate:"required"`
	Body    string `json:"body" validate:"required,min=1,max=4000"`
}

// DirectMessageResponse is the serialized representation of a direct
// message. Duplicate is set when a resend inside the dedup window
// collapsed onto an existing row.
type DirectMessageResponse struct {
	ID         uint      `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
	Duplicate  bool      `json:"duplicate,omitempty"`
}

// NewDirectMessageResponse converts a model into a DTO.
func NewDirectMessageResponse(message models.DirectMessage) DirectMessageResponse {
	return DirectMessageResponse{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Body:       message.Body,
		IsRead:     message.IsRead,
		CreatedAt:  message.CreatedAt,
	}
}

// NewDirectMessageResponseSlice converts a slice of models into DTOs.
func NewDirectMessageResponseSlice(messages []models.DirectMessage) []DirectMessageResponse {
	out := make([]DirectMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewDirectMessageResponse(message))
	}
	return out
}

// GroupMessageResponse is the serialized representation of a group message.
type GroupMessageResponse struct {
	ID        uint      `json:"id"`
	GroupID   uint      `json:"group_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// NewGroupMessageResponse converts a model into a DTO.
func NewGroupMessageResponse(message models.GroupMessage) GroupMessageResponse {
	return GroupMessageResponse{
		ID:        message.ID,
		GroupID:   message.GroupID,
		SenderID:  message.SenderID,
		Body:      message.Body,
		CreatedAt: message.CreatedAt,
	}
}

// NewGroupMessageResponseSlice converts a slice of models into DTOs.
func NewGroupMessageResponseSlice(messages []models.GroupMessage) []GroupMessageResponse {
	out := make([]GroupMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewGroupMessageResponse(message))
	}
	return out
}

// ConversationSummary is one row of the direct-conversation overview:
// the peer, the newest message exchanged with them, and how many of
// their messages remain unread.
type ConversationSummary struct {
	PeerID          string    `json:"peer_id"`
	PeerName        string    `json:"peer_name"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int64     `json:"unread_count"`
}

// GroupSummary is one row of the group overview. LastMessage fields are
// empty for groups that have no messages yet.
type GroupSummary struct {
	GroupID         uint       `json:"group_id"`
	Name            string     `json:"name"`
	Avatar          string     `json:"avatar,omitempty"`
	MemberCount     int64      `json:"member_count"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastSenderID    string     `json:"last_sender_id,omitempty"`
	LastSenderName  string     `json:"last_sender_name,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	UnreadCount     int64      `json:"unread_count"`
}

// MarkReadResponse reports how many messages a mark-read call affected.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}
