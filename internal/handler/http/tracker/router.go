package tracker_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sledzspecke/internal/app/tracker"
)

func RegisterRoutes(r chi.Router, s tracker.TrackerService, l *zap.Logger) {
	handler := NewTrackerHandler(s, l.With(zap.String("component", "TrackerHTTPHandler")))

	r.Route("/shifts", func(r chi.Router) {
		r.Post("/", handler.CreateShiftHandler)
		r.Post("/{id}/approve", handler.ApproveShiftHandler)
	})

	r.Route("/procedures", func(r chi.Router) {
		r.Post("/", handler.RegisterProcedureHandler)
	})
}
