package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/data/mongo"
	"github.com/credit-title-marketplace/internal/logger"
	"github.com/credit-title-marketplace/internal/marketplace/components"
	marketplace "github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/credit-title-marketplace/internal/platform/messaging/consumers"
	"github.com/credit-title-marketplace/internal/platform/messaging/producers"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	workercomponents "github.com/credit-title-marketplace/internal/settlement_worker/components"
	"github.com/credit-title-marketplace/internal/settlement_worker/consumer"
	"github.com/credit-title-marketplace/internal/settlement_worker/outbox_poller"
	"github.com/credit-title-marketplace/internal/settlement_worker/service"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("settlement_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg, "settlement_worker")

	log.Info("Starting Settlement Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	var velocity redis.Cmdable
	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, velocity heuristic disabled", "error", err)
	} else {
		velocity = redisClient
	}

	// Initialize repositories
	repos := components.NewRepositories(postgresDB, log)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	if err := auditRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create audit indexes", "error", err)
		os.Exit(1)
	}

	deps := components.NewDependencies(postgresDB, repos, components.SandboxCollaborators(log), velocity, log, cfg)
	svcs := components.CreateServices(deps, auditRepo)

	if _, err := svcs.Wallets.EnsurePlatformAccount(appCtx); err != nil {
		log.Error("Failed to provision platform account", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer is nil when no DLQ topic is configured

	notificationProducer, err := producers.NewNotificationProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}

	callbackProcessor := workercomponents.CreateCallbackProcessor(
		svcs.Settlements,
		svcs.Wallets,
		log,
		cfg,
	)

	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}
	callbackHandler := consumer.NewPaymentCallbackHandler(
		log,
		callbackProcessor,
		deadLetters,
	)

	// Initialize outbox poller
	auditPublisher := outbox_poller.NewAuditPublisher(
		repos.Outbox,
		auditRepo,
		producers.NewKafkaNotifier(notificationProducer),
		log,
	)
	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		repos.Outbox,
		auditPublisher,
		log,
	)

	sweeper := marketplace.NewSweeper(svcs.Titles, svcs.Listings, svcs.Proposals, cfg.Marketplace.SweepInterval, log)

	// Create error channel for service errors
	errChan := make(chan error, 3)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.PaymentCallbackTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, callbackHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	if pool, ok := callbackProcessor.(*service.WorkerPoolCallbackProcessor); ok {
		log.Info("Shutting down worker pool", "running_workers", pool.Running())
		pool.Shutdown()
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	if err = notificationProducer.Close(); err != nil {
		log.Error("Error closing notification producer", "error", err)
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if redisClient != nil {
		if err = redisClient.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	// Final status
	if serviceErr != nil {
		log.Error("Settlement Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Settlement Worker shutdown completed with errors")
	} else {
		log.Info("Settlement Worker shutdown completed successfully")
	}
}
