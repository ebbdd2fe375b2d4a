package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sortie-social/sortie-api/internal/models"
)

// GroupMessageRepository persists group messages and their per-user
// read markers.
type GroupMessageRepository interface {
	CreateWithSenderRead(ctx context.Context, message *models.GroupMessage) error
	FindRecentDuplicate(ctx context.Context, groupID uint, senderID, body string, since time.Time) (models.GroupMessage, bool, error)
	ListByGroup(ctx context.Context, groupID uint) ([]models.GroupMessage, error)
	LatestByGroup(ctx context.Context, groupID uint) (models.GroupMessage, bool, error)
	MarkAllRead(ctx context.Context, groupID uint, userID string) (int64, error)
	CountUnread(ctx context.Context, groupID uint, userID string) (int64, error)
}

type groupMessageRepository struct {
	db *gorm.DB
}

// NewGroupMessageRepository constructs a group message repository backed by GORM.
func NewGroupMessageRepository(db *gorm.DB) GroupMessageRepository {
	return &groupMessageRepository{db: db}
}

// CreateWithSenderRead appends the message and records the sender's own
// read marker in the same transaction. A sender has read their message
// at send time.
func (r *groupMessageRepository) CreateWithSenderRead(ctx context.Context, message *models.GroupMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		read := models.GroupMessageRead{MessageID: message.ID, UserID: message.SenderID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&read).Error
	})
}

func (r *groupMessageRepository) FindRecentDuplicate(ctx context.Context, groupID uint, senderID, body string, since time.Time) (models.GroupMessage, bool, error) {
	var message models.GroupMessage
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND sender_id = ? AND body = ? AND created_at >= ?", groupID, senderID, body, since).
		Order("created_at DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GroupMessage{}, false, nil
	}
	if err != nil {
		return models.GroupMessage{}, false, err
	}
	return message, true, nil
}

func (r *groupMessageRepository) ListByGroup(ctx context.Context, groupID uint) ([]models.GroupMessage, error) {
	var messages []models.GroupMessage
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *groupMessageRepository) LatestByGroup(ctx context.Context, groupID uint) (models.GroupMessage, bool, error) {
	var message models.GroupMessage
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.GroupMessage{}, false, nil
	}
	if err != nil {
		return models.GroupMessage{}, false, err
	}
	return message, true, nil
}

// MarkAllRead inserts read markers for every message in the group the
// user has not yet seen and returns how many were added. The conflict
// clause makes re-marking a no-op, and RowsAffected keeps the count
// honest when a concurrent marker wins the insert.
func (r *groupMessageRepository) MarkAllRead(ctx context.Context, groupID uint, userID string) (int64, error) {
	var unreadIDs []uint
	err := r.db.WithContext(ctx).
		Model(&models.GroupMessage{}).
		Select("id").
		Where("group_id = ?", groupID).
		Where("id NOT IN (?)",
			r.db.Model(&models.GroupMessageRead{}).Select("message_id").Where("user_id = ?", userID),
		).
		Find(&unreadIDs).Error
	if err != nil {
		return 0, err
	}
	if len(unreadIDs) == 0 {
		return 0, nil
	}

	reads := make([]models.GroupMessageRead, 0, len(unreadIDs))
	for _, id := range unreadIDs {
		reads = append(reads, models.GroupMessageRead{MessageID: id, UserID: userID})
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&reads)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *groupMessageRepository) CountUnread(ctx context.Context, groupID uint, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GroupMessage{}).
		Where("group_id = ?", groupID).
		Where("id NOT IN (?)",
			r.db.Model(&models.GroupMessageRead{}).Select("message_id").Where("user_id = ?", userID),
		).
		Count(&count).Error
	return count, err
}
