package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lancer-robotics/minibot/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "minibot",
		"version": Version,
	})
}

// handleInfo returns the robot identity and host details.
func (s *Server) handleInfo(c *gin.Context) {
	r := s.cfg.GetRobot()
	hw := s.cfg.GetHardware()

	c.JSON(http.StatusOK, gin.H{
		"robot_id": r.ID,
		"udp_port": r.UDPPort,
		"driver":   hw.Driver,
		"version":  Version,
		"session":  s.session,
		"uptime":   util.FormatUptime(s.started),
		"system":   util.GetSystemInfo(),
	})
}
