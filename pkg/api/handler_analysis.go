package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/investlabs/researchd/pkg/models"
	"github.com/investlabs/researchd/pkg/services"
)

// maxIDAttempts bounds id regeneration when a short id collides.
const maxIDAttempts = 3

// StartAnalysis handles POST /api/analyze. It creates the session, opens its
// progress feed and launches the pipeline in the background.
func (s *Server) StartAnalysis(c *gin.Context) {
	useCached := true
	if raw, ok := c.GetQuery("use_cached"); ok {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			abortWithServiceError(c, services.NewValidationError("use_cached", "must be a boolean"))
			return
		}
		useCached = parsed
	}

	// Short ids can collide; retry with a fresh one instead of failing the
	// request.
	var sess *models.AnalysisSession
	for attempt := 0; ; attempt++ {
		sess = &models.AnalysisSession{
			ID:            uuid.NewString()[:8],
			Status:        models.SessionRunning,
			StartedAt:     time.Now().UTC(),
			UseCachedData: useCached,
		}
		err := s.store.Create(c.Request.Context(), sess)
		if err == nil {
			break
		}
		if errors.Is(err, services.ErrAlreadyExists) && attempt < maxIDAttempts-1 {
			continue
		}
		abortWithServiceError(c, err)
		return
	}

	// Open the feed before the pipeline starts so no event can be missed.
	s.bus.Feed(sess.ID)
	s.pipeline.Start(sess)

	slog.Info("analysis started", "session_id", sess.ID, "use_cached_data", useCached)

	c.JSON(http.StatusOK, AnalysisStartedResponse{
		AnalysisID: sess.ID,
		Status:     "started",
		StreamURL:  "/api/stream/" + sess.ID,
		Message:    "Analysis started. Connect to stream_url for real-time updates.",
	})
}
