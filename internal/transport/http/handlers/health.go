package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// readinessCheck is one named dependency probe.
type readinessCheck struct {
	name  string
	probe func(ctx context.Context) error
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []readinessCheck
}

// HealthOption configures a HealthHandler at construction time.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe consulted by Readiness.
func WithReadinessCheck(name string, probe func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, readinessCheck{name: name, probe: probe})
	}
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Status reports liveness unconditionally; it never touches a dependency.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: time.Now().UTC(),
	})
}

// Readiness runs every registered dependency probe and reports 503 with a
// degraded status when any probe fails, so orchestrators can distinguish
// "up" from "serving".
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := make(map[string]string, len(h.checks))
	status := "ready"

	for _, check := range h.checks {
		if err := check.probe(c.Request.Context()); err != nil {
			checks[check.name] = err.Error()
			status = "degraded"
			continue
		}
		checks[check.name] = "ok"
	}

	code := http.StatusOK
	if status == "degraded" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, ReadyResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	})
}
