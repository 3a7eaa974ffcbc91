// Package api is the HTTP layer: it accepts turn requests, drains the
// client event queue into a framed streaming response body, and exposes
// health.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loomworks/loom/pkg/history"
	"github.com/loomworks/loom/pkg/runner"
)

// Server wires the HTTP routes to the turn runner.
type Server struct {
	runner        *runner.Runner
	store         *history.RedisStore // nil when persistence is disabled
	queueCapacity int
	turnTimeout   time.Duration
}

// NewServer creates the API server. store may be nil.
func NewServer(r *runner.Runner, store *history.RedisStore, queueCapacity int, turnTimeout time.Duration) *Server {
	return &Server{
		runner:        r,
		store:         store,
		queueCapacity: queueCapacity,
		turnTimeout:   turnTimeout,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.healthHandler)

	v1 := router.Group("/v1")
	{
		v1.POST("/conversations/:id/messages", s.turnHandler)
		v1.GET("/conversations/:id/messages", s.listMessagesHandler)
	}
	return router
}
