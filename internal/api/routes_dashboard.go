package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/dashboard"
)

const dashboardCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; connect-src 'self'; frame-ancestors 'none'"

// mountDashboard serves the embedded pit dashboard at "/". The page talks
// to the monitor and control endpoints with the bearer token it is given.
func mountDashboard(router *gin.Engine) {
	page, err := dashboard.DistFS.ReadFile(dashboard.IndexPath)
	if err != nil {
		log.Warn().Err(err).Msg("pit dashboard not embedded, UI will not be available")
		return
	}

	serve := func(c *gin.Context) {
		c.Header("Content-Security-Policy", dashboardCSP)
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	}
	router.GET("/", serve)
	router.HEAD("/", serve)
}
