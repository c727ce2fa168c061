package api

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
)

// StreamProgress handles GET /api/stream/:id. It replays the session's full
// event log, follows live events, and finishes with the end frame. A client
// disconnect stops the stream without touching the pipeline.
func (s *Server) StreamProgress(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.store.Get(c.Request.Context(), id); err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// No feed means no producer in this process: the run finished earlier, or
	// the server restarted mid-run. Either way there is nothing to replay and
	// nobody will ever close a fresh feed, so end the stream right away.
	feed, ok := s.bus.Lookup(id)
	if !ok {
		s.writeEndFrame(c)
		return
	}

	cur := feed.Subscribe()
	ctx := c.Request.Context()
	for {
		ev, more, err := cur.Next(ctx)
		if err != nil {
			slog.Debug("stream client disconnected", "session_id", id)
			return
		}
		if !more {
			break
		}
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("failed to encode progress event", "session_id", id, "error", err)
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}

	s.writeEndFrame(c)
}

func (s *Server) writeEndFrame(c *gin.Context) {
	data, _ := json.Marshal(endFrame{Type: "end", Message: "Stream closed"})
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}
