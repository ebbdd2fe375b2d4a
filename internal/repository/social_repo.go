package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/models"
)

// SocialRepository reads the identity and catalog tables owned by other
// Sortie services. This core never writes them.
type SocialRepository interface {
	IsFriend(ctx context.Context, userA, userB string) (bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	DisplayName(ctx context.Context, userID string) (string, error)
	VenueName(ctx context.Context, venueID uint) (string, error)
	EventName(ctx context.Context, eventID uint) (string, error)
}

type socialRepository struct {
	db *gorm.DB
}

// NewSocialRepository constructs a read-only view over the identity and
// catalog tables.
func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

// IsFriend checks the symmetric relation in either column order.
func (r *socialRepository) IsFriend(ctx context.Context, userA, userB string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userA, userB, userB, userA).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *socialRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DisplayName returns the stored name, or the raw id when the user row
// is missing so notification rendering never fails on a lookup.
func (r *socialRepository) DisplayName(ctx context.Context, userID string) (string, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", err
	}
	if user.DisplayName == "" {
		return userID, nil
	}
	return user.DisplayName, nil
}

func (r *socialRepository) VenueName(ctx context.Context, venueID uint) (string, error) {
	var venue models.Venue
	if err := r.db.WithContext(ctx).First(&venue, venueID).Error; err != nil {
		return "", err
	}
	return venue.Name, nil
}

func (r *socialRepository) EventName(ctx context.Context, eventID uint) (string, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, eventID).Error; err != nil {
		return "", err
	}
	return event.Name, nil
}
