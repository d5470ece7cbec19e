package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/api/websocket"
	"github.com/KevinKickass/OpenUnitSync/internal/auth"
	"github.com/KevinKickass/OpenUnitSync/internal/config"
	"github.com/KevinKickass/OpenUnitSync/internal/interfaces"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // Scan blockiert bis discovery.timeout
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ====================
		v1.POST("/auth/login", s.login)
		v1.GET("/auth/me", s.authService.AuthMiddleware(), s.getCurrentUser)

		// ==================== SYSTEM (OPERATOR+) ====================
		v1.GET("/system/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.getSystemStatus)

		// ==================== UNITS (OPERATOR+) ====================
		units := v1.Group("/units")
		units.Use(s.authService.AuthMiddleware())
		units.Use(auth.RequirePermission(auth.PermOperator))
		{
			units.POST("/scan", s.scanUnits)
			units.GET("", s.listUnits)
		}

		// ==================== PROFILES ====================
		profiles := v1.Group("/profiles")
		profiles.Use(s.authService.AuthMiddleware())
		{
			profiles.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getProfile)
			profiles.PUT("/:id", auth.RequirePermission(auth.PermTechnician), s.putProfile)
		}

		// ==================== SYNC ====================
		sync := v1.Group("/sync")
		sync.Use(s.authService.AuthMiddleware())
		{
			sync.POST("", auth.RequirePermission(auth.PermTechnician), s.startSync)
			sync.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getSyncStatus)
			sync.GET("/:id/report", auth.RequirePermission(auth.PermOperator), s.getSyncReport)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
