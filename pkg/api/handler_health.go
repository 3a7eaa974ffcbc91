package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loomworks/loom/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /healthz. Only the service's own dependencies
// are checked; the model provider is deliberately excluded so an upstream
// outage does not get this service restarted.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	status := healthStatusHealthy
	code := http.StatusOK

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			status = healthStatusUnhealthy
			code = http.StatusServiceUnavailable
			checks["redis"] = gin.H{"status": healthStatusUnhealthy, "message": err.Error()}
		} else {
			checks["redis"] = gin.H{"status": healthStatusHealthy}
		}
	}

	c.JSON(code, gin.H{"status": status, "version": version.Full(), "checks": checks})
}
