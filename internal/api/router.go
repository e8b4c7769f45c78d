package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the service's HTTP surface: the ingest endpoint at the
// root, the query layer under /api/v1, and health probes.
func NewRouter(handlers *Handlers, healthHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/ingest", handlers.Ingest)
	r.Method(http.MethodGet, "/health", healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/telemetry", handlers.GetTelemetry)
		r.Delete("/telemetry", handlers.DeleteTelemetry)
		r.Get("/devices", handlers.GetDevices)
		r.Get("/device/{deviceID}/latest", handlers.GetLatest)
		r.Get("/device/{deviceID}/history", handlers.GetHistory)
		r.Get("/stats", handlers.GetStats)
		r.Get("/pipeline/stats", handlers.PipelineStats)
	})

	return r
}
