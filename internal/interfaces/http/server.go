// Package http is the thin HTTP adapter over the pipeline and BOM services.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	registry   *prometheus.Registry
	logger     *zap.Logger
}

// NewServer creates the HTTP server and wires all routes
func NewServer(config ServerConfig, handlers *Handlers, registry *prometheus.Registry, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		handlers: handlers,
		registry: registry,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:  s.config.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	{
		api.GET("/vendor-cache/status", s.handlers.VendorCacheStatus)
		api.POST("/vendor-cache/refresh", s.handlers.VendorCacheRefresh)

		api.POST("/emails", s.handlers.IngestEmail)
		api.GET("/emails/pending", s.handlers.ListPendingReview)

		email := api.Group("/emails/:message_id")
		{
			email.POST("/approve", s.handlers.ApproveEmail)
			email.POST("/reject", s.handlers.RejectEmail)
			email.POST("/reopen", s.handlers.ReopenEmail)
			email.POST("/reprocess", s.handlers.ReprocessEmail)
			email.POST("/sync", s.handlers.SyncToERP)

			email.GET("/bom-impact", s.handlers.GetBomImpact)
			email.GET("/bom-impact/report", s.handlers.ExportBomImpact)
			email.POST("/bom-impact/reanalyze", s.handlers.ReanalyzeBomImpact)
			email.POST("/bom-impact/approve-all", s.handlers.ApproveAllProducts)
			email.POST("/bom-impact/:index/approve", s.handlers.ApproveProduct)
			email.POST("/bom-impact/:index/reject", s.handlers.RejectProduct)
		}

		api.GET("/threads/:conversation_id/bom-impact", s.handlers.ThreadBomImpact)
	}
}

// Start runs the server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
