package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is any dependency the readiness probe can check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store  Pinger
	redis  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler. A nil redis means the
// in-process revocation list is in use and is reported as not configured.
func NewHealthHandler(store, redis Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		store:  store,
		redis:  redis,
		logger: logger,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /healthz - Simple liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz. Returns 200 only if every configured
// dependency answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := check(ctx, checks, "database", h.store)
	healthy = check(ctx, checks, "redis", h.redis) && healthy

	status := "ready"
	statusCode := http.StatusOK
	if !healthy {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadinessResponse{Status: status, Checks: checks})

	h.logger.Debug("readiness check",
		slog.String("status", status),
		slog.String("database", checks["database"]),
		slog.String("redis", checks["redis"]),
	)
}

func check(ctx context.Context, checks map[string]string, name string, p Pinger) bool {
	if p == nil {
		checks[name] = "not configured"
		return true
	}
	if err := p.Ping(ctx); err != nil {
		checks[name] = "error"
		return false
	}
	checks[name] = "ok"
	return true
}
