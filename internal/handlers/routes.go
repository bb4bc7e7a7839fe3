package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"pickings/internal/health"
	"pickings/internal/jobs"
	"pickings/internal/services"
)

// Deps are the collaborators the routes are served from. Enqueuer may be nil.
type Deps struct {
	Folios   *services.FolioRegistry
	Details  *services.DetailLedger
	Users    *services.UserRegistry
	Enqueuer jobs.Enqueuer
	Health   *health.Checker
	Gatherer prometheus.Gatherer
}

// Register mounts every route on app.
func Register(app fiber.Router, d Deps) {
	folioHandler := NewFolioHandler(d.Folios, d.Details, d.Enqueuer)
	detailHandler := NewDetailHandler(d.Details)
	userHandler := NewUserHandler(d.Users)

	if d.Health != nil {
		app.Get("/healthz", NewHealthHandler(d.Health).HealthCheck)
	}
	if d.Gatherer != nil {
		app.Get("/metrics", MetricsHandler(d.Gatherer))
	}

	api := app.Group("/api")
	api.Post("/session", userHandler.Session)

	folios := api.Group("/folios")
	folios.Get("/", folioHandler.List)
	folios.Post("/import", folioHandler.Import)
	folios.Get("/:folio", folioHandler.Get)
	folios.Get("/:folio/details", folioHandler.Details)
	folios.Put("/:folio/status", folioHandler.UpdateStatus)
	folios.Put("/:folio/assignee", folioHandler.Reassign)
	folios.Post("/:folio/documents", folioHandler.AddDocument)

	details := api.Group("/details")
	details.Get("/counts", detailHandler.Counts)
	details.Post("/", detailHandler.Register)
	details.Put("/status", detailHandler.UpdateStatus)
	details.Delete("/", detailHandler.Delete)

	users := api.Group("/users")
	users.Get("/", userHandler.List)
	users.Post("/", userHandler.Create)
	users.Delete("/:username", userHandler.Delete)
}
