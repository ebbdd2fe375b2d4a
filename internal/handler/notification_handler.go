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

// broadcastAudienceWindow bounds the default broadcast audience to
// users whose device token was refreshed recently.
const broadcastAudienceWindow = 24 * time.Hour

// NotificationHandler provides HTTP endpoints for the in-app
// notification log and operator broadcasts.
type NotificationHandler struct {
	service    service.NotificationService
	dispatcher service.Dispatcher
	registry   service.DeviceRegistry
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(svc service.NotificationService, dispatcher service.Dispatcher, registry service.DeviceRegistry, validator *validator.Validate, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:    svc,
		dispatcher: dispatcher,
		registry:   registry,
		validator:  validator,
		logger:     logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the notification routes. Broadcast is registered
// separately so the router can guard it with a role check.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/notifications", h.list)
	router.Post("/notifications/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	ctx := withRequestContext(c)

	notifications, err := h.service.List(ctx, userID, limit, offset)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	notification, err := h.service.MarkRead(ctx, uint(id), userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "notification marked read", notification)
}

// Broadcast pushes an announcement to an explicit or recently active
// audience. Delivery is capped and partial failure is reported, not
// raised.
func (h *NotificationHandler) Broadcast(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.BroadcastRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	audience := payload.UserIDs
	if len(audience) == 0 {
		active, err := h.registry.ListActiveUsers(ctx, broadcastAudienceWindow)
		if err != nil {
			return sendServiceError(c, err)
		}
		audience = active
	}

	tokens, err := h.registry.ResolveBatch(ctx, audience)
	if err != nil {
		return sendServiceError(c, err)
	}
	audienceTokens := make([]string, 0, len(audience))
	for _, id := range audience {
		if token, ok := tokens[id]; ok && token != "" {
			audienceTokens = append(audienceTokens, token)
		}
	}

	report := h.dispatcher.NotifyBroadcast(ctx, service.BroadcastEvent{
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
	}, audienceTokens)

	requestLogger(h.logger, c).Info().
		Str("initiator_id", userID).
		Int("attempted", report.Attempted).
		Int("delivered", report.Delivered).
		Msg("broadcast dispatched")

	return utils.SendSuccess(c, "broadcast dispatched", dto.BroadcastReportResponse{
		Attempted: report.Attempted,
		Delivered: report.Delivered,
		Stale:     report.Stale,
		Failed:    report.Failed,
	})
}
