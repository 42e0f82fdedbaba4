package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/config"
	"github.com/lancer-robotics/minibot/internal/db"
	intnet "github.com/lancer-robotics/minibot/internal/network"
	"github.com/lancer-robotics/minibot/internal/robot"
)

// Version is reported by the public endpoints.
var Version = "1.0.0"

// RobotControl is the part of the robot the API reads and latches.
type RobotControl interface {
	Snapshot() robot.Snapshot
	SetEmergencyStop(ctx context.Context, active bool, by string)
}

// JournalReader serves recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, limit int, eventType string) ([]db.Entry, error)
}

// Server is the local REST API server.
type Server struct {
	cfg     *config.Config
	robot   RobotControl
	journal JournalReader
	session string
	started time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. journal may be nil.
func NewServer(cfg *config.Config, r RobotControl, journal JournalReader, session string) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		robot:   r,
		journal: journal,
		session: session,
		started: time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// listenAddr keeps an unauthenticated API off the network.
func listenAddr(c config.APIConfig) string {
	if c.AuthDisabled {
		return fmt.Sprintf("127.0.0.1:%d", c.Port)
	}
	return fmt.Sprintf(":%d", c.Port)
}

// Start listens on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := listenAddr(s.cfg.GetApplicationData().API)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetApplicationData().API

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(apiCfg.RateLimitRPS).Middleware())

	auth := NewAuthMiddleware(apiCfg)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleInfo)
	}

	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	monitor := protected.Group("/monitor")
	monitor.Use(auth.RequireRole(RoleViewer))
	{
		monitor.GET("/status", s.handleStatus)
		monitor.GET("/journal", s.handleJournal)
	}

	control := protected.Group("/control")
	control.Use(auth.RequireRole(RoleOperator))
	{
		control.POST("/estop", s.handleEStop)
		control.POST("/release", s.handleRelease)
	}

	mountDashboard(router)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
