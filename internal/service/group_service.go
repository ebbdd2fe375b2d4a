package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/apperr"
	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/models"
	"github.com/sortie-social/sortie-api/internal/repository"
)

const maxAvatarBytes = 5 * 1024 * 1024

// FileStorage abstracts upload destinations for group avatars.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// GroupNotifier is the slice of the dispatcher the group directory
// needs. Calls are fire-and-forget from the directory's perspective.
type GroupNotifier interface {
	NotifyAddedToGroup(ctx context.Context, userID string, groupID uint, groupName, actorID string)
}

// GroupService owns group membership, admin roles and group lifecycle.
type GroupService interface {
	CreateGroup(ctx context.Context, creatorID string, payload dto.GroupCreateRequest) (dto.GroupResponse, error)
	AddMember(ctx context.Context, groupID uint, actingUserID, newUserID string) error
	RemoveMember(ctx context.Context, groupID uint, actingUserID, targetUserID string) error
	LeaveGroup(ctx context.Context, groupID uint, userID string) error
	UpdateGroup(ctx context.Context, groupID uint, actingUserID string, payload dto.GroupUpdateRequest) (dto.GroupResponse, error)
	UploadAvatar(ctx context.Context, groupID uint, actingUserID string, file *multipart.FileHeader) (dto.GroupResponse, error)
	DeleteGroup(ctx context.Context, groupID uint, actingUserID string) error
	Members(ctx context.Context, groupID uint) ([]dto.GroupMemberResponse, error)
	MemberIDs(ctx context.Context, groupID uint) ([]string, error)
	Group(ctx context.Context, groupID uint) (dto.GroupResponse, error)
}

type groupService struct {
	repo     repository.GroupRepository
	social   repository.SocialRepository
	storage  FileStorage
	notifier GroupNotifier
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewGroupService constructs the group directory. Storage and notifier
// are optional; without storage avatar upload is rejected, without a
// notifier membership changes stay silent.
func NewGroupService(repo repository.GroupRepository, social repository.SocialRepository, storage FileStorage, notifier GroupNotifier, logger zerolog.Logger) GroupService {
	return &groupService{
		repo:     repo,
		social:   social,
		storage:  storage,
		notifier: notifier,
		logger:   logger.With().Str("component", "group_service").Logger(),
		tracer:   otel.Tracer("github.com/sortie-social/sortie-api/internal/service/groups"),
	}
}

// CreateGroup creates the group with the creator as sole initial admin
// plus every listed member that resolves to a real user. Unknown ids
// and a duplicated creator id are skipped silently. The insert is
// atomic; on any failure no group and no membership rows remain.
func (s *groupService) CreateGroup(ctx context.Context, creatorID string, payload dto.GroupCreateRequest) (dto.GroupResponse, error) {
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return dto.GroupResponse{}, apperr.Validation("group name must not be empty")
	}
	if payload.MemberIDs == nil {
		return dto.GroupResponse{}, apperr.Validation("member list is required")
	}

	ctx, span := s.tracer.Start(ctx, "groups.create", trace.WithAttributes(
		attribute.String("group.creator_id", creatorID),
		attribute.Int("group.requested_members", len(payload.MemberIDs)),
	))
	defer span.End()

	members := []models.GroupMember{{UserID: creatorID, IsAdmin: true}}
	seen := map[string]struct{}{creatorID: {}}
	for _, memberID := range payload.MemberIDs {
		memberID = strings.TrimSpace(memberID)
		if memberID == "" {
			continue
		}
		if _, dup := seen[memberID]; dup {
			continue
		}
		seen[memberID] = struct{}{}

		exists, err := s.social.UserExists(ctx, memberID)
		if err != nil {
			span.RecordError(err)
			return dto.GroupResponse{}, apperr.Transient(err, "failed to resolve member")
		}
		if !exists {
			s.logger.Debug().Str("user_id", memberID).Msg("skipping unknown member id")
			continue
		}
		members = append(members, models.GroupMember{UserID: memberID})
	}

	group := models.Group{
		Name:        name,
		Description: strings.TrimSpace(payload.Description),
		CreatedBy:   creatorID,
	}
	if err := s.repo.CreateWithMembers(ctx, &group, members); err != nil {
		span.RecordError(err)
		return dto.GroupResponse{}, apperr.Transient(err, "failed to create group")
	}

	if s.notifier != nil {
		for _, member := range members {
			if member.UserID == creatorID {
				continue
			}
			s.notifier.NotifyAddedToGroup(ctx, member.UserID, group.ID, group.Name, creatorID)
		}
	}

	return dto.NewGroupResponse(group), nil
}

func (s *groupService) AddMember(ctx context.Context, groupID uint, actingUserID, newUserID string) error {
	group, err := s.requireAdmin(ctx, groupID, actingUserID)
	if err != nil {
		return err
	}

	exists, err := s.social.UserExists(ctx, newUserID)
	if err != nil {
		return apperr.Transient(err, "failed to resolve user")
	}
	if !exists {
		return apperr.NotFound("user %s does not exist", newUserID)
	}

	if _, err := s.repo.FindMember(ctx, groupID, newUserID); err == nil {
		return apperr.Conflict("user is already a member of the group")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Transient(err, "failed to check membership")
	}

	member := models.GroupMember{GroupID: groupID, UserID: newUserID}
	if err := s.repo.AddMember(ctx, &member); err != nil {
		return apperr.Transient(err, "failed to add member")
	}

	if s.notifier != nil {
		s.notifier.NotifyAddedToGroup(ctx, newUserID, groupID, group.Name, actingUserID)
	}

	return nil
}

// RemoveMember removes the target from the group. Removing the sole
// admin of a group that still has other members is blocked; that case
// must go through LeaveGroup's promotion path.
func (s *groupService) RemoveMember(ctx context.Context, groupID uint, actingUserID, targetUserID string) error {
	if _, err := s.requireAdmin(ctx, groupID, actingUserID); err != nil {
		return err
	}

	target, err := s.repo.FindMember(ctx, groupID, targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("user is not a member of the group")
		}
		return apperr.Transient(err, "failed to check membership")
	}

	if target.IsAdmin {
		adminCount, err := s.repo.CountAdmins(ctx, groupID)
		if err != nil {
			return apperr.Transient(err, "failed to count admins")
		}
		memberCount, err := s.repo.CountMembers(ctx, groupID)
		if err != nil {
			return apperr.Transient(err, "failed to count members")
		}
		if adminCount == 1 && memberCount > 1 {
			return apperr.Conflict("removing the sole admin would leave the group without one")
		}
	}

	if err := s.repo.RemoveMember(ctx, groupID, targetUserID); err != nil {
		return apperr.Transient(err, "failed to remove member")
	}
	return nil
}

// LeaveGroup removes the caller. When the leaver is the sole admin and
// other members remain, the surviving member with the lowest membership
// id is promoted first, so a non-empty group always keeps an admin.
func (s *groupService) LeaveGroup(ctx context.Context, groupID uint, userID string) error {
	member, err := s.repo.FindMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Authorization("user is not a member of the group")
		}
		return apperr.Transient(err, "failed to check membership")
	}

	promote := false
	if member.IsAdmin {
		adminCount, err := s.repo.CountAdmins(ctx, groupID)
		if err != nil {
			return apperr.Transient(err, "failed to count admins")
		}
		memberCount, err := s.repo.CountMembers(ctx, groupID)
		if err != nil {
			return apperr.Transient(err, "failed to count members")
		}
		promote = adminCount == 1 && memberCount > 1
	}

	if err := s.repo.RemoveMemberPromoting(ctx, groupID, userID, promote); err != nil {
		return apperr.Transient(err, "failed to leave group")
	}

	if promote {
		s.logger.Info().Uint("group_id", groupID).Str("user_id", userID).Msg("promoted replacement admin on leave")
	}
	return nil
}

func (s *groupService) UpdateGroup(ctx context.Context, groupID uint, actingUserID string, payload dto.GroupUpdateRequest) (dto.GroupResponse, error) {
	group, err := s.requireAdmin(ctx, groupID, actingUserID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if payload.Name != nil {
		name := strings.TrimSpace(*payload.Name)
		if name == "" {
			return dto.GroupResponse{}, apperr.Validation("group name must not be empty")
		}
		group.Name = name
	}
	if payload.Description != nil {
		group.Description = strings.TrimSpace(*payload.Description)
	}
	if payload.Avatar != nil {
		group.Avatar = strings.TrimSpace(*payload.Avatar)
	}

	if err := s.repo.Update(ctx, &group); err != nil {
		return dto.GroupResponse{}, apperr.Transient(err, "failed to update group")
	}
	return dto.NewGroupResponse(group), nil
}

// UploadAvatar stores the image and points the group's avatar at the
// resulting URL.
func (s *groupService) UploadAvatar(ctx context.Context, groupID uint, actingUserID string, file *multipart.FileHeader) (dto.GroupResponse, error) {
	group, err := s.requireAdmin(ctx, groupID, actingUserID)
	if err != nil {
		return dto.GroupResponse{}, err
	}

	if s.storage == nil {
		return dto.GroupResponse{}, apperr.Validation("avatar storage is not configured")
	}
	if file == nil {
		return dto.GroupResponse{}, apperr.Validation("avatar file is required")
	}
	if file.Size > maxAvatarBytes {
		return dto.GroupResponse{}, apperr.Validation("avatar exceeds the maximum allowed size")
	}

	handle, err := file.Open()
	if err != nil {
		return dto.GroupResponse{}, apperr.Transient(err, "failed to open avatar upload")
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxAvatarBytes+1)); err != nil {
		return dto.GroupResponse{}, apperr.Transient(err, "failed to read avatar upload")
	}
	if int64(buf.Len()) > maxAvatarBytes {
		return dto.GroupResponse{}, apperr.Validation("avatar exceeds the maximum allowed size")
	}

	detected := mimetype.Detect(buf.Bytes())
	if !strings.HasPrefix(detected.String(), "image/") {
		return dto.GroupResponse{}, apperr.Validation("avatar must be an image, got %s", detected.String())
	}

	url, err := s.storage.Upload(ctx, fmt.Sprintf("group-%d-avatar", groupID), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return dto.GroupResponse{}, apperr.Transient(err, "failed to store avatar")
	}

	group.Avatar = url
	if err := s.repo.Update(ctx, &group); err != nil {
		return dto.GroupResponse{}, apperr.Transient(err, "failed to update group avatar")
	}
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) DeleteGroup(ctx context.Context, groupID uint, actingUserID string) error {
	if _, err := s.requireAdmin(ctx, groupID, actingUserID); err != nil {
		return err
	}
	if err := s.repo.DeleteCascade(ctx, groupID); err != nil {
		return apperr.Transient(err, "failed to delete group")
	}
	return nil
}

// Members lists memberships admins-first.
func (s *groupService) Members(ctx context.Context, groupID uint) ([]dto.GroupMemberResponse, error) {
	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, apperr.Transient(err, "failed to list members")
	}
	return dto.NewGroupMemberResponseSlice(members), nil
}

// MemberIDs returns the ids of all current members.
func (s *groupService) MemberIDs(ctx context.Context, groupID uint) ([]string, error) {
	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, apperr.Transient(err, "failed to list members")
	}
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}
	return ids, nil
}

func (s *groupService) Group(ctx context.Context, groupID uint) (dto.GroupResponse, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GroupResponse{}, apperr.NotFound("group %d does not exist", groupID)
		}
		return dto.GroupResponse{}, apperr.Transient(err, "failed to load group")
	}
	return dto.NewGroupResponse(group), nil
}

func (s *groupService) requireAdmin(ctx context.Context, groupID uint, userID string) (models.Group, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Group{}, apperr.NotFound("group %d does not exist", groupID)
		}
		return models.Group{}, apperr.Transient(err, "failed to load group")
	}

	member, err := s.repo.FindMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Group{}, apperr.Authorization("user is not a member of the group")
		}
		return models.Group{}, apperr.Transient(err, "failed to check membership")
	}
	if !member.IsAdmin {
		return models.Group{}, apperr.Authorization("user is not an admin of the group")
	}

	return group, nil
}
