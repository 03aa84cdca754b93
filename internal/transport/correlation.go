package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/promocheck/internal/observability"
)

// CorrelationID takes the request id from X-Request-ID, generating one when
// absent, echoes it on the response and stores it in the user context.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if id := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); id != "" {
			ctx = observability.WithCorrelationID(ctx, id)
		}

		ctx, id := observability.EnsureCorrelationID(ctx)
		c.SetUserContext(ctx)
		c.Set(fiber.HeaderXRequestID, id)

		return c.Next()
	}
}
