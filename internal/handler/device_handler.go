package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/service"
	"github.com/sortie-social/sortie-api/internal/utils"
)

const defaultActiveWindowMinutes = 15

// DeviceHandler provides HTTP endpoints for push token registration.
type DeviceHandler struct {
	registry  service.DeviceRegistry
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewDeviceHandler constructs a handler instance.
func NewDeviceHandler(registry service.DeviceRegistry, validator *validator.Validate, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		registry:  registry,
		validator: validator,
		logger:    logger.With().Str("component", "device_handler").Logger(),
	}
}

// Register binds the device routes.
func (h *DeviceHandler) Register(router fiber.Router) {
	router.Post("/devices", h.registerToken)
	router.Delete("/devices", h.unregisterToken)
	router.Get("/devices/active", h.activeUsers)
}

func (h *DeviceHandler) registerToken(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.DeviceRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	token, err := h.registry.Register(ctx, userID, payload.Token)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("user_id", userID).Msg("token registration failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "token registered", token)
}

func (h *DeviceHandler) unregisterToken(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.DeviceRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	if err := h.registry.Evict(ctx, userID, payload.Token); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "token removed", nil)
}

func (h *DeviceHandler) activeUsers(c *fiber.Ctx) error {
	minutes, err := parseQueryInt(c, "window_minutes")
	if err != nil || minutes < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid window_minutes")
	}
	if minutes == 0 {
		minutes = defaultActiveWindowMinutes
	}
	window := time.Duration(minutes) * time.Minute

	ctx := withRequestContext(c)

	userIDs, err := h.registry.ListActiveUsers(ctx, window)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "active users", dto.ActiveUsersResponse{
		Window:  window.String(),
		UserIDs: userIDs,
	})
}
