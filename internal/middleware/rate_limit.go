package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit throttles a route per authenticated user, falling back to
// the client IP for unauthenticated traffic. Each name gets its own
// counter, so message sends and avatar uploads do not share a budget.
func RateLimit(name string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := fmt.Sprintf("%v", c.Locals("user_id"))
			if caller == "" || caller == "<nil>" {
				caller = c.IP()
			}
			return fmt.Sprintf("%s:%s", name, caller)
		},
	})
}
