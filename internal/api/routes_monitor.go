package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/util"
)

const maxJournalLimit = 500

// handleStatus returns the robot snapshot with host load.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"robot":  s.robot.Snapshot(),
		"host":   util.GetHostLoad(),
		"uptime": util.FormatUptime(s.started),
	})
}

// handleJournal returns recent journal entries. Query: limit, type.
func (s *Server) handleJournal(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxJournalLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(c.Request.Context(), limit, c.Query("type"))
	if err != nil {
		log.Error().Err(err).Msg("API: journal query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}
