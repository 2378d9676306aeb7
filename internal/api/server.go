package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	intnet "github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/server"
)

// Server is the monitoring REST API of a running war server.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions *server.Manager
	listener *intnet.TCPListener

	router *gin.Engine

	// Start may run again after a failed attempt.
	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, sessions *server.Manager, listener *intnet.TCPListener) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		listener: listener,
		ready:    make(chan struct{}),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc := intnet.ListenConfig(0)
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	log.Info().Str("addr", ln.Addr().String()).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Ready is closed once the API socket is first bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address of the latest bind. Valid after Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.API.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
	}

	monitor := router.Group("/api")
	{
		monitor.GET("/stats", s.handleGetStats)
		monitor.GET("/sessions", s.handleGetSessions)
		monitor.GET("/sessions/:id", s.handleGetSession)
		monitor.GET("/connections", s.handleGetConnections)
		monitor.GET("/system", s.handleGetSystem)
		monitor.GET("/events", s.handleEvents)
	}

	control := router.Group("/api/control")
	{
		control.POST("/sessions/:id/abort", s.handleAbortSession)
	}

	configure := router.Group("/api/configure")
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/server", s.handleSetServerField)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "war API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
