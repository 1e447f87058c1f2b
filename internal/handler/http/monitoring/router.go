// Package monitoring exposes the outbox's operational surface: liveness and
// the unprocessed-message count used by health dashboards.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UnprocessedCounter is the read-only slice of the outbox repository this
// surface needs.
type UnprocessedCounter interface {
	CountUnprocessed(ctx context.Context) (int, error)
}

type OutboxStatsResponse struct {
	Unprocessed int `json:"unprocessed"`
}

func RegisterRoutes(r chi.Router, counter UnprocessedCounter, l *zap.Logger) {
	logger := l.With(zap.String("component", "MonitoringHandler"))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
	})

	r.Route("/stats", func(r chi.Router) {
		r.Get("/outbox", func(w http.ResponseWriter, req *http.Request) {
			count, err := counter.CountUnprocessed(req.Context())
			if err != nil {
				logger.Error("Failed to count unprocessed outbox messages", zap.Error(err))
				http.Error(w, "Failed to read outbox stats", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(OutboxStatsResponse{Unprocessed: count})
		})
	})
}
