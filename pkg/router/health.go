package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupOperationalRoutes registers the endpoints used by operators rather
// than API clients.
func (r *Router) setupOperationalRoutes() {
	// Plain /health for load balancers that do not know the /api prefix.
	r.Engine.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if !r.Container.Health.IsSystemHealthy() {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	if r.Container.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.Metrics.Handler()))
	}
}
