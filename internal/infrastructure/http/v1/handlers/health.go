package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  []HealthCheck
	info    map[string]any
	started time.Time
}

// NewHealthHandler creates a new health handler. info is merged into the
// /health/info response (driver name, pool stats provider, version).
func NewHealthHandler(info map[string]any, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, info: info, started: time.Now()}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[hc.Name] = "unhealthy: " + err.Error()
			continue
		}
		results[hc.Name] = "healthy"
	}

	body := gin.H{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	c.JSON(status, body)
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":    "motoledger",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	for k, v := range h.info {
		if fn, ok := v.(func() map[string]any); ok {
			body[k] = fn()
			continue
		}
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
