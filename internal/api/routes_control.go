package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type abortRequest struct {
	Reason string `json:"reason"`
}

// handleAbortSession tears down an active session. Both players see their
// connection close.
func (s *Server) handleAbortSession(c *gin.Context) {
	id := c.Param("id")

	var req abortRequest
	// An empty body is fine.
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "aborted by operator"
	}

	if !s.sessions.Abort(id, req.Reason) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": id})
		return
	}

	log.Info().Str("session_id", id).Str("reason", req.Reason).Msg("API: session aborted")

	c.JSON(http.StatusOK, gin.H{
		"status": "aborted",
		"id":     id,
	})
}
