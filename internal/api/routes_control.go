package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// handleEStop latches the emergency stop.
func (s *Server) handleEStop(c *gin.Context) {
	s.setEStop(c, true)
}

// handleRelease clears the emergency stop.
func (s *Server) handleRelease(c *gin.Context) {
	s.setEStop(c, false)
}

func (s *Server) setEStop(c *gin.Context, active bool) {
	by := "api:" + c.GetString(ctxSubject)
	s.robot.SetEmergencyStop(c.Request.Context(), active, by)

	log.Warn().
		Bool("active", active).
		Str("by", by).
		Str("client_ip", c.ClientIP()).
		Msg("API: emergency stop set")

	snap := s.robot.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"emergency_stop": snap.EmergencyStop,
		"status":         snap.Status,
	})
}
