package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Get(wsRoute(s.wsCfg.Path), s.handleWebSocket)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/vars/{var}", s.handleGetVariable)
				r.Get("/events", s.handleListEvents)

				// Control routes
				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Use(s.rateLimitMiddleware)

					r.Put("/vars/{var}", s.handleSetVariable)
					r.Post("/commands/{cmd}", s.handleInstCmd)
					r.Post("/fsd", s.handleFSD)
				})
			})
		})
	})

	return r
}

// wsRoute returns the WebSocket path relative to /api/v1. The configured
// path is absolute for readability in config files.
func wsRoute(path string) string {
	if rel, ok := strings.CutPrefix(path, "/api/v1/"); ok && rel != "" {
		return "/" + rel
	}
	return "/ws"
}

// handleHealth reports the server version and the optional backends.
// Any failing backend turns the status to "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	status := http.StatusOK
	for name, hc := range s.health {
		if err := hc.HealthCheck(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":            "ok",
		"version":           s.version,
		"websocket_clients": s.hub.ClientCount(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, status, body)
}
