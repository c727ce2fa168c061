package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/investlabs/researchd/pkg/models"
)

// GetStatus handles GET /api/status/:id.
func (s *Server) GetStatus(c *gin.Context) {
	sess, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ListSessions handles GET /api/sessions, newest first.
func (s *Server) ListSessions(c *gin.Context) {
	sessions, err := s.store.List(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*models.AnalysisSession{}
	}
	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// DeleteSession handles DELETE /api/sessions/:id. A running pipeline is
// canceled before the record and feed are removed.
func (s *Server) DeleteSession(c *gin.Context) {
	id := c.Param("id")

	if s.pipeline.Cancel(id) {
		slog.Info("canceled running pipeline", "session_id", id)
	}

	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		abortWithServiceError(c, err)
		return
	}
	s.bus.Release(id)

	c.JSON(http.StatusOK, DeleteResponse{Status: "deleted", SessionID: id})
}
