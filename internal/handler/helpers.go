package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sortie-social/sortie-api/internal/apperr"
	"github.com/sortie-social/sortie-api/internal/middleware"
	"github.com/sortie-social/sortie-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParamValue(c *fiber.Ctx, key string) (uint64, error) {
	value := strings.TrimSpace(c.Params(key))
	if value == "" {
		return 0, fmt.Errorf("%s required", key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func userIDStringFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		switch id := v.(type) {
		case string:
			return strings.TrimSpace(id)
		case fmt.Stringer:
			return strings.TrimSpace(id.String())
		case uint:
			return strconv.FormatUint(uint64(id), 10)
		case int:
			if id < 0 {
				return ""
			}
			return strconv.Itoa(id)
		}
	}
	return ""
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// sendServiceError translates service-layer errors into HTTP responses.
func sendServiceError(c *fiber.Ctx, err error) error {
	if isValidationError(err) {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status := fiber.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = fiber.StatusBadRequest
	case apperr.KindAuthorization:
		status = fiber.StatusForbidden
	case apperr.KindNotFound:
		status = fiber.StatusNotFound
	case apperr.KindConflict:
		status = fiber.StatusConflict
	}
	return utils.SendError(c, status, err.Error())
}
