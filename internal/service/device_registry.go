package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/apperr"
	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/repository"
)

const tokenCacheTTL = 10 * time.Minute

// DeviceRegistry owns the single push-delivery address kept per user
// and the presence proxy derived from token refresh times.
type DeviceRegistry interface {
	Register(ctx context.Context, userID, token string) (dto.DeviceTokenResponse, error)
	Resolve(ctx context.Context, userID string) (string, bool, error)
	ResolveBatch(ctx context.Context, userIDs []string) (map[string]string, error)
	ListActiveUsers(ctx context.Context, window time.Duration) ([]string, error)
	Evict(ctx context.Context, userID, token string) error
}

type deviceRegistry struct {
	repo   repository.DeviceTokenRepository
	cache  *redis.Client
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewDeviceRegistry constructs a device registry. The Redis client is
// optional; without it every resolution hits the database.
func NewDeviceRegistry(repo repository.DeviceTokenRepository, cache *redis.Client, logger zerolog.Logger) DeviceRegistry {
	return &deviceRegistry{
		repo:   repo,
		cache:  cache,
		logger: logger.With().Str("component", "device_registry").Logger(),
		tracer: otel.Tracer("github.com/sortie-social/sortie-api/internal/service/devices"),
	}
}

func (r *deviceRegistry) Register(ctx context.Context, userID, token string) (dto.DeviceTokenResponse, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" {
		return dto.DeviceTokenResponse{}, apperr.Validation("user id is required")
	}
	if token == "" {
		return dto.DeviceTokenResponse{}, apperr.Validation("token is required")
	}

	ctx, span := r.tracer.Start(ctx, "devices.register", trace.WithAttributes(
		attribute.String("device.user_id", userID),
	))
	defer span.End()

	stored, err := r.repo.Replace(ctx, userID, token)
	if err != nil {
		span.RecordError(err)
		return dto.DeviceTokenResponse{}, apperr.Transient(err, "failed to store device token")
	}

	r.cacheToken(ctx, userID, stored.Token)

	return dto.NewDeviceTokenResponse(stored), nil
}

// Resolve returns the user's push token. A missing row or a stored
// blank token both read as absent.
func (r *deviceRegistry) Resolve(ctx context.Context, userID string) (string, bool, error) {
	if cached, ok := r.cachedToken(ctx, userID); ok {
		if strings.TrimSpace(cached) == "" {
			return "", false, nil
		}
		return cached, true, nil
	}

	stored, err := r.repo.FindByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Transient(err, "failed to resolve device token")
	}

	if strings.TrimSpace(stored.Token) == "" {
		return "", false, nil
	}

	r.cacheToken(ctx, userID, stored.Token)
	return stored.Token, true, nil
}

// ResolveBatch resolves tokens for many users at once. Users with no
// registration or a blank token are omitted from the result, never
// returned as empty strings.
func (r *deviceRegistry) ResolveBatch(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	tokens, err := r.repo.FindByUsers(ctx, userIDs)
	if err != nil {
		return nil, apperr.Transient(err, "failed to resolve device tokens")
	}

	resolved := make(map[string]string, len(tokens))
	for _, stored := range tokens {
		if strings.TrimSpace(stored.Token) == "" {
			continue
		}
		resolved[stored.UserID] = stored.Token
	}
	return resolved, nil
}

// ListActiveUsers treats a token refresh inside the window as activity.
// A user with a valid token on a powered-off device still counts; the
// imprecision is accepted.
func (r *deviceRegistry) ListActiveUsers(ctx context.Context, window time.Duration) ([]string, error) {
	if window <= 0 {
		return nil, apperr.Validation("window must be positive")
	}

	tokens, err := r.repo.ListUpdatedSince(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, apperr.Transient(err, "failed to list active users")
	}

	users := make([]string, 0, len(tokens))
	for _, stored := range tokens {
		if strings.TrimSpace(stored.Token) == "" {
			continue
		}
		users = append(users, stored.UserID)
	}
	return users, nil
}

// Evict drops a stale token reported by the push gateway. The delete is
// conditional on the token still matching, so a newer registration
// survives a late eviction.
func (r *deviceRegistry) Evict(ctx context.Context, userID, token string) error {
	if err := r.repo.DeleteToken(ctx, userID, token); err != nil {
		return apperr.Transient(err, "failed to evict device token")
	}
	r.dropCachedToken(ctx, userID)
	r.logger.Info().Str("user_id", userID).Msg("evicted stale device token")
	return nil
}

func (r *deviceRegistry) cacheToken(ctx context.Context, userID, token string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, tokenCacheKey(userID), token, tokenCacheTTL).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to cache device token")
	}
}

func (r *deviceRegistry) cachedToken(ctx context.Context, userID string) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	value, err := r.cache.Get(ctx, tokenCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn().Err(err).Msg("failed to read device token cache")
		}
		return "", false
	}
	return value, true
}

func (r *deviceRegistry) dropCachedToken(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, tokenCacheKey(userID)).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to drop device token cache entry")
	}
}

func tokenCacheKey(userID string) string {
	return fmt.Sprintf("devices:token:%s", userID)
}
