package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newProtectedApp(roles ...string) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	handlers := []fiber.Handler{}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": c.Locals("user_id"),
			"role":    c.Locals("user_role"),
		})
	})
	app.Get("/", handlers...)
	return app
}

func performAuthed(t *testing.T, app *fiber.App, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestJWTProtectedRejectsMissingAndInvalidTokens(t *testing.T) {
	app := newProtectedApp()

	resp := performAuthed(t, app, "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = performAuthed(t, app, "not-a-token")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedExtractsUserAndStringRole(t *testing.T) {
	app := newProtectedApp("operator")

	token := signToken(t, jwt.MapClaims{"sub": "ava", "role": " Operator "})
	resp := performAuthed(t, app, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedExtractsRoleFromListClaim(t *testing.T) {
	app := newProtectedApp("admin", "operator")

	token := signToken(t, jwt.MapClaims{"sub": "ava", "roles": []interface{}{"", "ADMIN"}})
	resp := performAuthed(t, app, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedMemberRoleFailsRoleGuard(t *testing.T) {
	app := newProtectedApp("admin", "operator")

	token := signToken(t, jwt.MapClaims{"sub": "ava", "role": "member"})
	resp := performAuthed(t, app, token)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
