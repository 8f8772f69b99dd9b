package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/credit-title-marketplace/internal/api_gateway"
	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/data/mongo"
	"github.com/credit-title-marketplace/internal/logger"
	"github.com/credit-title-marketplace/internal/marketplace/components"
	"github.com/credit-title-marketplace/internal/platform/messaging/producers"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("marketplace_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg, "marketplace_api")

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, velocity heuristic disabled", "error", err)
	}

	// Payment gateway webhooks are queued for the settlement worker
	callbackProducer, err := producers.NewPaymentCallbackProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment callback producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	repos := components.NewRepositories(postgresDB, log)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize services
	deps := components.NewDependencies(postgresDB, repos, components.SandboxCollaborators(log), redisCmdable(redisClient), log, cfg)
	svcs := components.CreateServices(deps, auditRepo)

	if _, err := svcs.Wallets.EnsurePlatformAccount(appCtx); err != nil {
		log.Error("Failed to provision platform account", "error", err)
		os.Exit(1)
	}

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, svcs, callbackProducer)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before the pools go away
	if err = server.Stop(context.Background(), cfg.Server.ShutdownTimeout); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = callbackProducer.Close(); err != nil {
		log.Error("Error closing payment callback producer", "error", err)
	}

	postgresDB.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if redisClient != nil {
		if err = redisClient.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

// redisCmdable keeps a missing client a nil interface
func redisCmdable(client *redis.Client) redis.Cmdable {
	if client == nil {
		return nil
	}
	return client
}
