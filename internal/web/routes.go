package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/deface/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	processHandler := handlers.NewProcessHandler(s.config, s.processor, s.jobManager)
	filesHandler := handlers.NewFilesHandler(s.config)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Processing jobs (long-running operations)
		r.Post("/jobs", processHandler.Start)
		r.Get("/jobs", processHandler.List)
		r.Get("/jobs/{jobId}", processHandler.Status)
		r.Get("/jobs/{jobId}/events", processHandler.Events)
		r.Delete("/jobs/{jobId}", processHandler.Cancel)

		// Shared directory listing (debug aid)
		r.Get("/files", filesHandler.List)
	})
}
