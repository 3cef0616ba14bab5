package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/clage-homeserver/internal/auth"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID, echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverJSON)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.PermStateRead))
			r.Get("/sensors", s.handleListSensors)
			r.Get("/homeservers", s.handleListHomeservers)
			r.Get("/homeservers/{id}", s.handleGetHomeserver)
			r.Get("/homeservers/{id}/state", s.handleGetState)
			r.Get("/homeservers/{id}/state/{field}", s.handleGetField)
			r.Get("/homeservers/{id}/history", s.handleGetHistory)
			r.Get("/ws", s.handleWebSocket)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.PermDeviceOperate))
			r.Post("/services/set_temperature", s.handleSetTemperature)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.PermDeviceConfigure))
			r.Post("/homeservers", s.handleAddHomeserver)
			r.Delete("/homeservers/{id}", s.handleDeleteHomeserver)
			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status. The status is "starting"
// until the first refresh completes. Components that fail their check turn
// it to "degraded" but never fail the request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.coord.Ready() {
		status = "starting"
	}
	components := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()

		if err != nil {
			components[name] = err.Error()
			if status == "ok" {
				status = "degraded"
			}
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"devices":    s.registry.Count(),
		"interval":   s.coord.Interval().String(),
		"components": components,
	})
}
