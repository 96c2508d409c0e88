// Package server exposes the HTTP surface: the call webhook, the SSE stream,
// and the health/metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/broadcast"
	"gitlab.com/kantoorbase/api/call-events-service/internal/config"
	"gitlab.com/kantoorbase/api/call-events-service/internal/usecase"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/utils"
)

// Server wires the gin engine to the ingestion service and the broadcaster.
type Server struct {
	httpServer  *http.Server
	engine      *gin.Engine
	service     *usecase.CallService
	broadcaster *broadcast.Broadcaster
	cfg         *config.Config
	logger      *zap.Logger
}

// New creates the HTTP server with all routes registered.
func New(cfg *config.Config, service *usecase.CallService, broadcaster *broadcast.Broadcaster, log *zap.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		service:     service,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      log,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: engine,
		},
	}

	engine.Use(s.requestContext())

	engine.GET("/health", s.handleHealth)
	engine.GET("/ready", s.handleReady)
	if cfg.Metrics.Enabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := engine.Group("/api")
	{
		api.POST("/webhooks/call", s.handleCallWebhook)
		api.GET("/calls/stream", s.handleCallStream)
	}

	return s
}

// Engine exposes the gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	utils.SafeGo(func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}, nil)
}

// Stop gracefully shuts down the HTTP server and drops all stream subscribers.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	s.broadcaster.Close()
	return s.httpServer.Shutdown(ctx)
}

// requestContext assigns a request ID and a scoped logger to every request.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := utils.WithRequestID(c.Request.Context(), requestID)
		ctx = logger.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		// Stream requests run for their whole connection lifetime; logging
		// them per request would only record teardown.
		if c.FullPath() != "/api/calls/stream" {
			logger.FromContext(ctx).Debug("Request handled",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "READY",
		"timestamp": utils.FormatISO8601(utils.Now()),
	})
}
