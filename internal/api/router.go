package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mcs-device-service/internal/events"
)

// healthCheckTimeout bounds each component check behind GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/ProxyStatus", s.handleListProxyStatus)
	r.Get("/ProxyStatus/{id}", s.handleGetProxyStatus)

	r.Get("/DeviceServiceConfig", s.handleListDevices)
	r.Get("/DeviceServiceConfig/{id}", s.handleGetDevice)
	r.Get("/monitor/status", s.handleMonitorStatus)

	r.Get(s.wsPath(), s.handleWebSocket)

	// Mutating routes.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/DeviceServiceConfig", s.handleCreateDevice)
		r.Put("/DeviceServiceConfig/{id}", s.handleUpdateDevice)
		r.Delete("/DeviceServiceConfig/{id}", s.handleDeleteDevice)

		r.Post("/Start/{id}", s.handleCommand(events.ActionStart))
		r.Post("/Stop/{id}", s.handleCommand(events.ActionStop))
		r.Post("/Pause/{id}", s.handleCommand(events.ActionPause))
		r.Post("/Resume/{id}", s.handleCommand(events.ActionResume))

		r.Post("/monitor/reload", s.handleMonitorReload)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports liveness plus database and bus checks. A failing
// database makes the response 503; a disconnected bus does not.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	code := http.StatusOK
	state := "ok"
	checks := map[string]string{
		"database": checkComponent(ctx, s.db),
		"mqtt":     checkComponent(ctx, s.mqtt),
	}
	if checks["database"] != "ok" && checks["database"] != "not configured" {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"message": "Device Service is running",
		"status":  state,
		"version": s.version,
		"checks":  checks,
	})
}

func checkComponent(ctx context.Context, hc HealthChecker) string {
	if hc == nil {
		return "not configured"
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
