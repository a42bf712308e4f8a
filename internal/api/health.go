package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports the health of a dependency
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler aggregates dependency health checks
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a health handler over named dependency checks
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health reports overall service health. Any failing dependency makes
// the whole check unhealthy with a 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"checks":    results,
		"timestamp": time.Now(),
	})
}
