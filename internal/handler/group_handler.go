package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/service"
	"github.com/sortie-social/sortie-api/internal/utils"
)

// GroupHandler provides HTTP endpoints for group management.
type GroupHandler struct {
	service   service.GroupService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGroupHandler constructs a handler instance.
func NewGroupHandler(service service.GroupService, validator *validator.Validate, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "group_handler").Logger(),
	}
}

// Register binds the group routes.
func (h *GroupHandler) Register(router fiber.Router) {
	router.Post("/groups", h.createGroup)
	router.Get("/groups/:id", h.getGroup)
	router.Put("/groups/:id", h.updateGroup)
	router.Delete("/groups/:id", h.deleteGroup)
	router.Post("/groups/:id/avatar", h.uploadAvatar)
	router.Get("/groups/:id/members", h.listMembers)
	router.Post("/groups/:id/members", h.addMember)
	router.Delete("/groups/:id/members/:userID", h.removeMember)
	router.Post("/groups/:id/leave", h.leaveGroup)
}

func (h *GroupHandler) createGroup(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.GroupCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	group, err := h.service.CreateGroup(ctx, userID, payload)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("creator_id", userID).Msg("group creation failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group created", group)
}

func (h *GroupHandler) getGroup(c *fiber.Ctx) error {
	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	group, err := h.service.Group(ctx, uint(groupID))
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "group", group)
}

func (h *GroupHandler) updateGroup(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GroupUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	ctx := withRequestContext(c)

	group, err := h.service.UpdateGroup(ctx, uint(groupID), userID, payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "group updated", group)
}

func (h *GroupHandler) deleteGroup(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	if err := h.service.DeleteGroup(ctx, uint(groupID), userID); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "group deleted", nil)
}

func (h *GroupHandler) uploadAvatar(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "avatar file required")
	}

	ctx := withRequestContext(c)

	group, err := h.service.UploadAvatar(ctx, uint(groupID), userID, file)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint64("group_id", groupID).Msg("avatar upload failed")
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "avatar updated", group)
}

func (h *GroupHandler) listMembers(c *fiber.Ctx) error {
	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	members, err := h.service.Members(ctx, uint(groupID))
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "members", members)
}

func (h *GroupHandler) addMember(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GroupMemberAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	if err := h.service.AddMember(ctx, uint(groupID), userID, payload.UserID); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "member added", nil)
}

func (h *GroupHandler) removeMember(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	targetID := c.Params("userID")
	if targetID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "userID required")
	}

	ctx := withRequestContext(c)

	if err := h.service.RemoveMember(ctx, uint(groupID), userID, targetID); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "member removed", nil)
}

func (h *GroupHandler) leaveGroup(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := withRequestContext(c)

	if err := h.service.LeaveGroup(ctx, uint(groupID), userID); err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "left group", nil)
}
