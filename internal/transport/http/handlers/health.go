package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessCheckTimeout = 2 * time.Second

// ReadinessCheck probes a single downstream dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    map[string]ReadinessCheck
}

// HealthOption configures the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe for the readiness endpoint.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandler) {
		if name == "" || check == nil {
			return
		}
		h.checks[name] = check
	}
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	handler := &HealthHandler{
		startedAt: time.Now().UTC(),
		checks:    make(map[string]ReadinessCheck),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// Status godoc
// @Summary Service health check
// @Description Returns the status and start time of the service.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: time.Now().UTC(),
	})
}

// Readiness godoc
// @Summary Service readiness check
// @Description Probes downstream dependencies and reports per-check results.
// @Tags Health
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	results := make(map[string]string, len(h.checks))
	ready := true

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessCheckTimeout)
		err := check(ctx)
		cancel()

		if err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	resp := ReadyResponse{
		Status:    "ready",
		Checks:    results,
		Timestamp: time.Now().UTC(),
	}

	if !ready {
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}
