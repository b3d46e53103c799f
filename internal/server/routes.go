package server

import (
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vandalwatch/internal/classifier"
	"vandalwatch/internal/db"
	"vandalwatch/internal/handlers/api"
	"vandalwatch/internal/session"
)

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(database *db.DB, mgr *session.Manager, trainer *classifier.Trainer, channels []string) {
	sessionHandler := api.NewSessionHandler(mgr, channels)
	queueHandler := api.NewQueueHandler(mgr, database, trainer)
	healthHandler := api.NewHealthHandler(database)

	s.App.Get("/healthz", healthHandler.Check)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	sessions := s.App.Group("/api/sessions")
	sessions.Post("/", sessionHandler.Open)
	sessions.Delete("/:id", sessionHandler.Close)
	sessions.Put("/:id/channel", sessionHandler.SetChannel)
	sessions.Put("/:id/rollback", sessionHandler.SetRollback)
	sessions.Get("/:id/next", queueHandler.Next)
	sessions.Post("/:id/feedback", queueHandler.Feedback)
}
