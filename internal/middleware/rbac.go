package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sortie-social/sortie-api/internal/utils"
)

// RequireRole gates a route on the role the JWT middleware stored in
// the request locals. Used for the operator-only broadcast endpoint;
// regular messaging routes need authentication only.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals("user_role"))
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return normalizeRole(v)
	case fmt.Stringer:
		return normalizeRole(v.String())
	default:
		return normalizeRole(fmt.Sprintf("%v", value))
	}
}
