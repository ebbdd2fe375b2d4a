package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sortie-social/sortie-api/internal/config"
	"github.com/sortie-social/sortie-api/internal/handler"
	"github.com/sortie-social/sortie-api/internal/middleware"
	"github.com/sortie-social/sortie-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MessagingHandler    *handler.MessagingHandler
	GroupHandler        *handler.GroupHandler
	DeviceHandler       *handler.DeviceHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := app.Group("/api/v1", jwtMiddleware)

	if deps.MessagingHandler != nil {
		deps.MessagingHandler.Register(protected)
	}

	if deps.GroupHandler != nil {
		deps.GroupHandler.Register(protected)
	}

	if deps.DeviceHandler != nil {
		deps.DeviceHandler.Register(protected)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(protected)
		protected.Post("/notifications/broadcast", middleware.RequireRole("admin", "operator"), deps.NotificationHandler.Broadcast)
	}
}
