package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"binance-ats/config"
	"binance-ats/internal/cache"
	"binance-ats/internal/events"
	"binance-ats/internal/logging"
	"binance-ats/internal/metrics"
	"binance-ats/internal/overlay"
	"binance-ats/internal/risk"
	"binance-ats/internal/scanner"
	"binance-ats/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ScanStatus is the read side of the orchestrator.
type ScanStatus interface {
	State() scanner.State
	LastResult() *scanner.ScanResult
	LastError() error
}

// BudgetReader reports the remaining hourly open budget.
type BudgetReader interface {
	Remaining(ctx context.Context, now time.Time) (int, error)
}

// Deps are the read-only collaborators behind the status API. Only Store and
// Scanner are required.
type Deps struct {
	Store    store.Store
	Scanner  ScanStatus
	Overlay  *overlay.Overlay
	Cache    cache.Cache
	Bus      *events.EventBus
	Metrics  *metrics.Metrics
	Budget   BudgetReader
	Breaker  func() string
	Switches func() risk.Switches
}

// Server represents the HTTP status API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
	config     config.ServerConfig
	overlay    config.OverlayConfig
	hub        *WSHub
	logger     *logging.Logger
	startedAt  time.Time
}

// NewServer creates the server, its routes and the websocket hub.
func NewServer(cfg config.ServerConfig, overlayCfg config.OverlayConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := splitOrigins(cfg.AllowedOrigins); len(origins) > 0 && origins[0] != "*" {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	if deps.Switches == nil {
		deps.Switches = risk.LoadSwitches
	}

	s := &Server{
		router:    router,
		deps:      deps,
		config:    cfg,
		overlay:   overlayCfg,
		hub:       NewWSHub(),
		logger:    logging.WithComponent("api"),
		startedAt: time.Now(),
	}
	router.Use(s.requestLogger())

	go s.hub.Run()
	if deps.Bus != nil {
		deps.Bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

func splitOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/scan/last", s.handleLastScan)
		api.GET("/plans", s.handlePlans)
		api.GET("/overlay", s.handleOverlay)
	}

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	s.router.GET("/ws", s.handleWebSocket)
}

// requestLogger logs requests at debug level through the component logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
