package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"pickings/internal/logging"
	"pickings/internal/metrics"
)

// ActorHeader names the identity acting on a request. There is no
// authentication; the client sends the user it selected at login.
const ActorHeader = "X-Actor"

// RequestContext copies the request id and the acting user into the user
// context so services log them.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		if actor := c.Get(ActorHeader); actor != "" {
			ctx = logging.ContextWithActor(ctx, actor)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// Metrics records request counts and durations by matched route.
func Metrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.HTTPRequest(c.Method(), c.Route().Path, status, time.Since(start).Seconds())
		return err
	}
}
