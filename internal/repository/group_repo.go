package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/models"
)

// GroupRepository owns groups and their memberships. Multi-row
// mutations (create with members, delete cascade, promote then remove)
// run inside a single transaction.
type GroupRepository interface {
	CreateWithMembers(ctx context.Context, group *models.Group, members []models.GroupMember) error
	FindByID(ctx context.Context, id uint) (models.Group, error)
	Update(ctx context.Context, group *models.Group) error
	DeleteCascade(ctx context.Context, groupID uint) error

	AddMember(ctx context.Context, member *models.GroupMember) error
	FindMember(ctx context.Context, groupID uint, userID string) (models.GroupMember, error)
	ListMembers(ctx context.Context, groupID uint) ([]models.GroupMember, error)
	CountMembers(ctx context.Context, groupID uint) (int64, error)
	CountAdmins(ctx context.Context, groupID uint) (int64, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	RemoveMemberPromoting(ctx context.Context, groupID uint, userID string, promote bool) error
	RemoveMember(ctx context.Context, groupID uint, userID string) error
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository constructs a group repository backed by GORM.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

// CreateWithMembers inserts the group and every membership atomically.
// Member rows get the freshly assigned group id before insert. Any
// failure rolls the whole creation back, so no group ever exists with
// zero members.
func (r *groupRepository) CreateWithMembers(ctx context.Context, group *models.Group, members []models.GroupMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].GroupID = group.ID
		}
		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *groupRepository) FindByID(ctx context.Context, id uint) (models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func (r *groupRepository) Update(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Save(group).Error
}

// DeleteCascade removes the group with its memberships, messages and
// read markers in one transaction.
func (r *groupRepository) DeleteCascade(ctx context.Context, groupID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id IN (?)",
			tx.Model(&models.GroupMessage{}).Select("id").Where("group_id = ?", groupID),
		).Delete(&models.GroupMessageRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, groupID).Error
	})
}

func (r *groupRepository) AddMember(ctx context.Context, member *models.GroupMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *groupRepository) FindMember(ctx context.Context, groupID uint, userID string) (models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		return models.GroupMember{}, err
	}
	return member, nil
}

func (r *groupRepository) ListMembers(ctx context.Context, groupID uint) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("is_admin DESC, joined_at ASC, id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *groupRepository) CountMembers(ctx context.Context, groupID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}

func (r *groupRepository) CountAdmins(ctx context.Context, groupID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND is_admin = ?", groupID, true).
		Count(&count).Error
	return count, err
}

func (r *groupRepository) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Order("groups.created_at ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// RemoveMemberPromoting deletes the membership and, when promote is
// set, grants admin to the surviving member with the lowest membership
// id inside the same transaction. The group is never observable in a
// members-but-no-admin state.
func (r *groupRepository) RemoveMemberPromoting(ctx context.Context, groupID uint, userID string, promote bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if promote {
			var successor models.GroupMember
			err := tx.Where("group_id = ? AND user_id <> ?", groupID, userID).
				Order("id ASC").
				First(&successor).Error
			if err != nil {
				return err
			}
			if err := tx.Model(&models.GroupMember{}).
				Where("id = ?", successor.ID).
				Update("is_admin", true).Error; err != nil {
				return err
			}
		}
		return tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			Delete(&models.GroupMember{}).Error
	})
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID uint, userID string) error {
	return r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{}).Error
}
