package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/broadcast"
	"gitlab.com/kantoorbase/api/call-events-service/internal/config"
	"gitlab.com/kantoorbase/api/call-events-service/internal/crm"
	"gitlab.com/kantoorbase/api/call-events-service/internal/observer"
	"gitlab.com/kantoorbase/api/call-events-service/internal/server"
	"gitlab.com/kantoorbase/api/call-events-service/internal/storage"
	"gitlab.com/kantoorbase/api/call-events-service/internal/usecase"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting call events service",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("webhook_secret_configured", cfg.Webhook.Secret != ""),
	)

	// Initialize the call store
	postgresRepo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}
	callRepo := storage.NewCallRepoAdapter(postgresRepo)

	// CRM contact resolver
	crmClient := crm.NewClient(cfg.CRM, logger.Log)

	// Broadcaster is owned here and injected into both the ingestion service
	// and the streaming endpoint.
	broadcaster := broadcast.New(cfg.Stream.SubscriberBuffer, logger.Log)

	service := usecase.NewCallService(callRepo, crmClient, broadcaster, cfg.CRM.RequestTimeout)

	httpServer := server.New(cfg, service, broadcaster, logger.Log)
	httpServer.Start()

	logger.Log.Info("Endpoints available",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/api/webhooks/call", cfg.Server.Port)),
		zap.String("stream", fmt.Sprintf("http://localhost:%d/api/calls/stream", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := callRepo.Close(shutdownCtx); err != nil {
		logger.Log.Error("Database shutdown error", zap.Error(err))
	}

	logger.Log.Info("Shutdown complete")
}
