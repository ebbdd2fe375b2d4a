package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sortie-social/sortie-api/internal/config"
	"github.com/sortie-social/sortie-api/internal/utils"
)

var startTime = time.Now()

// HealthResponse is the liveness payload. It reports process identity
// only; dependency health shows up in the metrics, not here.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Uptime      string    `json:"uptime"`
}

// HealthCheck returns the liveness handler.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
