package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-faces/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	eventsHandler := handlers.NewEventsHandler(s.deps.Events, s.logger)
	associationsHandler := handlers.NewAssociationsHandler(s.deps.Associations)
	healthHandler := handlers.NewHealthHandler(s.deps.Checks)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		// S3 event notifications
		r.Post("/events", eventsHandler.Receive)

		r.Get("/associations/{contactKey}", associationsHandler.GetPhotos)
	})
}
