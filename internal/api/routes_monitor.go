package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/war/internal/util"
)

// handleGetStats returns the cumulative session counters.
func (s *Server) handleGetStats(c *gin.Context) {
	stats := s.sessions.Stats()
	c.JSON(http.StatusOK, gin.H{
		"active":        stats.Active,
		"started":       stats.Started,
		"completed":     stats.Completed,
		"aborted":       stats.Aborted,
		"rounds_played": stats.RoundsPlayed,
		"waiting":       s.listener.Waiting(),
		"connections":   s.listener.Registry().Count(),
	})
}

// handleGetSessions returns every active session.
func (s *Server) handleGetSessions(c *gin.Context) {
	sessions := s.sessions.GetAllInfo()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// handleGetSession returns one active session.
func (s *Server) handleGetSession(c *gin.Context) {
	info, ok := s.sessions.GetSession(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

type connectionInfo struct {
	ID          uint64 `json:"id"`
	Remote      string `json:"remote"`
	ConnectedAt string `json:"connected_at"`
	BytesIn     uint64 `json:"bytes_in"`
	BytesOut    uint64 `json:"bytes_out"`
}

// handleGetConnections lists the live player connections.
func (s *Server) handleGetConnections(c *gin.Context) {
	conns := s.listener.Registry().GetAll()
	result := make([]connectionInfo, 0, len(conns))
	for id, conn := range conns {
		result = append(result, connectionInfo{
			ID:          id,
			Remote:      conn.RemoteAddr().String(),
			ConnectedAt: conn.ConnectedAt().UTC().Format("2006-01-02T15:04:05Z"),
			BytesIn:     conn.BytesIn(),
			BytesOut:    conn.BytesOut(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	c.JSON(http.StatusOK, gin.H{
		"connections": result,
		"total":       len(result),
	})
}

// handleGetSystem returns host information and current resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	resp := gin.H{"system": util.GetSystemInfo()}

	if usage, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = usage
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}

	c.JSON(http.StatusOK, resp)
}
