package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
)

// handleGetConfig returns the runtime-relevant configuration sections.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server":  s.cfg.GetServer(),
		"clients": s.cfg.GetClients(),
		"health":  s.cfg.GetHealth(),
	})
}

type setFieldRequest struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value"`
}

// handleSetServerField updates one server setting. New sessions pick the
// change up; sessions already in flight keep their options.
func (s *Server) handleSetServerField(c *gin.Context) {
	var req setFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := s.cfg.GetServer()
	if err := s.cfg.UpdateServerField(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validation := config.Validate(s.cfg)
	if !validation.IsValid() {
		s.cfg.SetServer(previous)
		c.JSON(http.StatusBadRequest, gin.H{"errors": validation.Errors})
		return
	}

	if s.cfg.Path() != "" {
		if err := s.cfg.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
			return
		}
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "server",
			Key:     req.Key,
			Value:   req.Value,
		},
	})

	log.Info().Str("key", req.Key).Interface("value", req.Value).Msg("API: server setting updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"server": s.cfg.GetServer(),
	})
}
