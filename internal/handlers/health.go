package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pickings/internal/health"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HealthCheck handles GET /healthz. Only an error status answers 503.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	report := h.checker.Check(c.UserContext())

	status := fiber.StatusOK
	if report.Status == health.StatusError {
		status = fiber.StatusServiceUnavailable
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(status).JSON(report)
}

// MetricsHandler serves the prometheus exposition of gatherer
func MetricsHandler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
