package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/middleware"
	"github.com/sortie-social/sortie-api/internal/service"
	"github.com/sortie-social/sortie-api/internal/utils"
)

// MessagingHandler provides HTTP endpoints for direct and group messaging.
type MessagingHandler struct {
	service   service.MessagingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewMessagingHandler constructs a handler instance.
func NewMessagingHandler(service service.MessagingService, validator *validator.Validate, logger zerolog.Logger) *MessagingHandler {
	return &MessagingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "messaging_handler").Logger(),
	}
}

// Register binds the messaging routes. Sends are throttled per user;
// reads are not.
func (h *MessagingHandler) Register(router fiber.Router) {
	sendLimit := middleware.RateLimit("message-send", 30, time.Minute)
	router.Post("/messages/direct", sendLimit, h.sendDirect)
	router.Post("/messages/group", sendLimit, h.sendGroup)
	router.Get("/messages/direct/:peerID", h.directHistory)
	router.Get("/messages/group/:groupID", h.groupHistory)
	router.Post("/messages/direct/:peerID/read", h.markDirectRead)
	router.Post("/messages/group/:groupID/read", h.markGroupRead)
	router.Get("/messages/unread-count", h.unreadCount)
	router.Get("/conversations", h.conversations)
	router.Get("/conversations/groups", h.groupSummaries)
}

func (h *MessagingHandler) sendDirect(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.DirectSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	message, err := h.service.SendDirectMessage(ctx, userID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("sender_id", userID).Msg("direct send failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessagingHandler) sendGroup(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.GroupSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	message, err := h.service.SendGroupMessage(ctx, userID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("sender_id", userID).Msg("group send failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessagingHandler) directHistory(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	peerID := c.Params("peerID")
	if peerID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "peerID required")
	}

	ctx := withRequestContext(c)

	messages, err := h.service.FetchHistory(ctx, userID, peerID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "history", messages)
}

func (h *MessagingHandler) groupHistory(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	messages, err := h.service.FetchGroupHistory(ctx, uint(groupID), userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "history", messages)
}

func (h *MessagingHandler) markDirectRead(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	peerID := c.Params("peerID")
	if peerID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "peerID required")
	}

	ctx := withRequestContext(c)

	marked, err := h.service.MarkRead(ctx, userID, peerID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "messages marked read", dto.MarkReadResponse{Marked: marked})
}

func (h *MessagingHandler) markGroupRead(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "groupID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	marked, err := h.service.MarkGroupRead(ctx, uint(groupID), userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "messages marked read", dto.MarkReadResponse{Marked: marked})
}

func (h *MessagingHandler) unreadCount(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	ctx := withRequestContext(c)

	count, err := h.service.UnreadCount(ctx, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "unread count", fiber.Map{"count": count})
}

func (h *MessagingHandler) conversations(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	ctx := withRequestContext(c)

	summaries, err := h.service.FetchConversations(ctx, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "conversations", summaries)
}

func (h *MessagingHandler) groupSummaries(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	ctx := withRequestContext(c)

	summaries, err := h.service.FetchGroupSummaries(ctx, userID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "group conversations", summaries)
}
