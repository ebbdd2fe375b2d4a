package dto

import (
	"time"

	"github.com/sortie-social/sortie-api/internal/models"
)

// GroupCreateRequest is the payload to create a group. MemberIDs may
// include the creator or unknown users; both are skipped silently.
type GroupCreateRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Description string   `json:"description" validate:"max=2000"`
	MemberIDs   []string `json:"member_ids" validate:"required,dive,max=64"`
}

// GroupUpdateRequest updates mutable group fields. Nil pointers leave
// the field untouched.
type GroupUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Avatar      *string `json:"avatar" validate:"omitempty,max=512"`
}

// GroupMemberAddRequest names the user to add to a group.
type GroupMemberAddRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// GroupResponse is the serialized representation of a group.
type GroupResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewGroupResponse converts a model into a DTO.
func NewGroupResponse(group models.Group) GroupResponse {
	return GroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		Avatar:      group.Avatar,
		CreatedBy:   group.CreatedBy,
		CreatedAt:   group.CreatedAt,
	}
}

// GroupMemberResponse describes one membership row.
type GroupMemberResponse struct {
	UserID   string    `json:"user_id"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewGroupMemberResponseSlice converts membership models into DTOs.
func NewGroupMemberResponseSlice(members []models.GroupMember) []GroupMemberResponse {
	out := make([]GroupMemberResponse, 0, len(members))
	for _, member := range members {
		out = append(out, GroupMemberResponse{
			UserID:   member.UserID,
			IsAdmin:  member.IsAdmin,
			JoinedAt: member.JoinedAt,
		})
	}
	return out
}
