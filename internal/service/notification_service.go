package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/apperr"
	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/repository"
)

// NotificationService exposes the in-app notification log written by
// the dispatcher.
type NotificationService interface {
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
}

type notificationService struct {
	repo   repository.NotificationRepository
	logger zerolog.Logger
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:   repo,
		logger: logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Transient(err, "failed to list notifications")
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	notification, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, apperr.NotFound("notification %d does not exist", id)
		}
		return dto.NotificationResponse{}, apperr.Transient(err, "failed to mark notification read")
	}

	return dto.NewNotificationResponse(notification), nil
}
