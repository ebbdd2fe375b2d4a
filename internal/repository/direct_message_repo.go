package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/models"
)

// DirectMessageRepository persists 1:1 messages and their read flags.
type DirectMessageRepository interface {
	Create(ctx context.Context, message *models.DirectMessage) error
	FindRecentDuplicate(ctx context.Context, senderID, receiverID, body string, since time.Time) (models.DirectMessage, bool, error)
	ListBetween(ctx context.Context, userA, userB string) ([]models.DirectMessage, error)
	ListInvolving(ctx context.Context, userID string) ([]models.DirectMessage, error)
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)
	CountUnread(ctx context.Context, receiverID string) (int64, error)
}

type directMessageRepository struct {
	db *gorm.DB
}

// NewDirectMessageRepository constructs a direct message repository backed by GORM.
func NewDirectMessageRepository(db *gorm.DB) DirectMessageRepository {
	return &directMessageRepository{db: db}
}

func (r *directMessageRepository) Create(ctx context.Context, message *models.DirectMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// FindRecentDuplicate returns the newest message with the same sender,
// receiver and body created at or after since. Used for resend
// suppression; a concurrent duplicate slipping past this check is an
// accepted weak guarantee, not corruption.
func (r *directMessageRepository) FindRecentDuplicate(ctx context.Context, senderID, receiverID, body string, since time.Time) (models.DirectMessage, bool, error) {
	var message models.DirectMessage
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ? AND body = ? AND created_at >= ?", senderID, receiverID, body, since).
		Order("created_at DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DirectMessage{}, false, nil
	}
	if err != nil {
		return models.DirectMessage{}, false, err
	}
	return message, true, nil
}

func (r *directMessageRepository) ListBetween(ctx context.Context, userA, userB string) ([]models.DirectMessage, error) {
	var messages []models.DirectMessage
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListInvolving returns every message the user sent or received, newest
// first. Conversation summaries fold this into one row per peer.
func (r *directMessageRepository) ListInvolving(ctx context.Context, userID string) ([]models.DirectMessage, error) {
	var messages []models.DirectMessage
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *directMessageRepository) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", receiverID, senderID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (r *directMessageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DirectMessage{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&count).Error
	return count, err
}
