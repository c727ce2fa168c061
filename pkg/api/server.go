// Package api exposes the HTTP surface: analysis control, SSE progress
// streaming, session queries and health.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/investlabs/researchd/pkg/database"
	"github.com/investlabs/researchd/pkg/models"
	"github.com/investlabs/researchd/pkg/progress"
	"github.com/investlabs/researchd/pkg/services"
)

// PipelineStarter is what the handlers need from the orchestrator.
type PipelineStarter interface {
	Start(sess *models.AnalysisSession)
	Cancel(sessionID string) bool
}

// Server wires handlers to their collaborators.
type Server struct {
	store    services.SessionStore
	bus      *progress.Bus
	pipeline PipelineStarter

	// db is nil when running without a durable store.
	db *database.Client
}

// NewServer creates the API server. db may be nil for memory-only mode.
func NewServer(store services.SessionStore, bus *progress.Bus, pipeline PipelineStarter, db *database.Client) *Server {
	return &Server{
		store:    store,
		bus:      bus,
		pipeline: pipeline,
		db:       db,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(), securityHeaders())

	router.GET("/", s.Welcome)
	router.GET("/health", s.Health)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/analyze", s.StartAnalysis)
		apiGroup.GET("/stream/:id", s.StreamProgress)
		apiGroup.GET("/status/:id", s.GetStatus)
		apiGroup.GET("/sessions", s.ListSessions)
		apiGroup.DELETE("/sessions/:id", s.DeleteSession)
	}

	return router
}
