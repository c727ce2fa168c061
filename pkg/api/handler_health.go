package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/investlabs/researchd/pkg/version"
)

// healthCheckTimeout bounds the database ping inside the health handler.
const healthCheckTimeout = 5 * time.Second

// degradable is implemented by stores that can fall back to memory.
type degradable interface {
	Degraded() bool
}

// Health handles GET /health. Memory fallback is a degraded-but-serving
// state, so it still answers 200.
func (s *Server) Health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"store":  "memory",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbHealth, err := s.db.CheckHealth(ctx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":   "degraded",
			"store":    "memory_fallback",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	status := "healthy"
	store := "postgres"
	if d, ok := s.store.(degradable); ok && d.Degraded() {
		status = "degraded"
		store = "memory_fallback"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"store":    store,
		"database": dbHealth,
	})
}

// Welcome handles GET / with a service banner and endpoint map.
func (s *Server) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": version.AppName,
		"version": version.Full(),
		"endpoints": gin.H{
			"analyze":  "POST /api/analyze?use_cached=true|false",
			"stream":   "GET /api/stream/{session_id}",
			"status":   "GET /api/status/{session_id}",
			"sessions": "GET /api/sessions",
			"delete":   "DELETE /api/sessions/{session_id}",
			"health":   "GET /health",
		},
	})
}
