package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/war/internal/config"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": config.AppName,
		"version": config.AppVersion,
	})
}

// handleGetVersion returns the build version and the game listen address.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    config.AppName,
		"version": config.AppVersion,
		"listen":  s.cfg.Addr(),
	})
}
