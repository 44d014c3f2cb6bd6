package api

import (
	"net/http"
	"time"

	"character-nexus/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string                      `json:"status"`
	Timestamp   time.Time                   `json:"timestamp"`
	Version     string                      `json:"version"`
	Environment string                      `json:"environment"`
	Uptime      string                      `json:"uptime"`
	Components  map[string]health.Component `json:"components"`
}

// HealthHandler reports component health. A critical component that is down
// turns the answer into a 503.
type HealthHandler struct {
	checker *health.Checker
	version string
	env     string
	started time.Time
}

func NewHealthHandler(checker *health.Checker, version, env string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version, env: env, started: time.Now()}
}

// RegisterRoutes registers health check related routes
func (h *HealthHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	h.checker.RunChecks(c.Request.Context())

	response := HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now(),
		Version:     h.version,
		Environment: h.env,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Components:  h.checker.GetStatus(),
	}

	status := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}
