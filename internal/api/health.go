package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

// HealthStatus is the state of the service or one dependency.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const readinessTimeout = 3 * time.Second

// HealthResponse is the body of /health and /health/ready.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// Check probes one dependency.
type Check func(ctx context.Context) error

type healthHandler struct {
	service string
	version string
	started time.Time
	checks  map[string]Check
}

// liveness answers without touching dependencies.
func (h *healthHandler) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  HealthStatusHealthy,
		Service: h.service,
		Version: h.version,
		Uptime:  textutil.FormatDuration(time.Since(h.started)),
	})
}

// readiness runs every check and reports 503 if any fails.
func (h *healthHandler) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  HealthStatusHealthy,
		Service: h.service,
		Version: h.version,
		Uptime:  textutil.FormatDuration(time.Since(h.started)),
		Checks:  make(map[string]CheckResult, len(h.checks)),
	}
	for name, check := range h.checks {
		start := time.Now()
		result := CheckResult{Status: HealthStatusHealthy}
		if err := check(ctx); err != nil {
			result = CheckResult{Status: HealthStatusUnhealthy, Message: err.Error()}
			resp.Status = HealthStatusUnhealthy
		}
		result.Latency = time.Since(start).String()
		resp.Checks[name] = result
	}

	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
