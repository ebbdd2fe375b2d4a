package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/models"
)

// DeviceTokenRepository persists the single push-delivery address kept
// per user.
type DeviceTokenRepository interface {
	Replace(ctx context.Context, userID, token string) (models.DeviceToken, error)
	FindByUser(ctx context.Context, userID string) (models.DeviceToken, error)
	FindByUsers(ctx context.Context, userIDs []string) ([]models.DeviceToken, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]models.DeviceToken, error)
	DeleteToken(ctx context.Context, userID, token string) error
}

type deviceTokenRepository struct {
	db *gorm.DB
}

// NewDeviceTokenRepository constructs a device token repository backed by GORM.
func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// Replace installs token as the user's only registration. Re-registering
// the identical token just refreshes UpdatedAt; a different token
// removes the old row and inserts the new one in the same transaction,
// so concurrent registrations settle on a single row (last writer wins).
func (r *deviceTokenRepository) Replace(ctx context.Context, userID, token string) (models.DeviceToken, error) {
	var result models.DeviceToken

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DeviceToken
		err := tx.Where("user_id = ?", userID).First(&existing).Error
		switch {
		case err == nil && existing.Token == token:
			existing.UpdatedAt = time.Now()
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			result = existing
			return nil
		case err == nil:
			if err := tx.Delete(&models.DeviceToken{}, existing.ID).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		result = models.DeviceToken{UserID: userID, Token: token}
		return tx.Create(&result).Error
	})
	if err != nil {
		return models.DeviceToken{}, err
	}

	return result, nil
}

func (r *deviceTokenRepository) FindByUser(ctx context.Context, userID string) (models.DeviceToken, error) {
	var token models.DeviceToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error; err != nil {
		return models.DeviceToken{}, err
	}
	return token, nil
}

func (r *deviceTokenRepository) FindByUsers(ctx context.Context, userIDs []string) ([]models.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var tokens []models.DeviceToken
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *deviceTokenRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	if err := r.db.WithContext(ctx).Where("updated_at >= ?", since).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteToken removes the row only when it still holds the given token,
// so eviction of a stale token never races a newer registration away.
func (r *deviceTokenRepository) DeleteToken(ctx context.Context, userID, token string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&models.DeviceToken{}).Error
}
