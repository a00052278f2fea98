package middleware

import (
	"time"

	"photogram/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestLogging injects a correlation id into the request context and logs
// each request with its latency and status.
func RequestLogging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := c.Get("X-Request-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Set("X-Request-ID", correlationID)

		ctx := observability.WithCorrelationID(c.UserContext(), correlationID)
		c.SetUserContext(ctx)

		start := time.Now()
		err := c.Next()

		observability.GlobalLogger.InfoContext(ctx, "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"correlation_id", correlationID,
		)
		return err
	}
}
