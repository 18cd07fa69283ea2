package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/doculedger-governance/internal/config"
	dmongo "github.com/doculedger-governance/internal/data/mongo"
	"github.com/doculedger-governance/internal/data/postgres"
	"github.com/doculedger-governance/internal/domain/policy"
	"github.com/doculedger-governance/internal/logger"
	"github.com/doculedger-governance/internal/pipeline/components"
	"github.com/doculedger-governance/internal/pipeline/consumer"
	"github.com/doculedger-governance/internal/pipeline/dispatcher"
	"github.com/doculedger-governance/internal/pipeline/service"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/doculedger-governance/internal/pipeline/sweeper"
	"github.com/doculedger-governance/internal/platform/messaging/consumers"
	"github.com/doculedger-governance/internal/platform/messaging/producers"
	"github.com/doculedger-governance/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("pipeline_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Pipeline Worker",
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

	// Initialize repositories
	jobRepo := postgres.NewJobRepository(log, postgresDB)
	proposalRepo := postgres.NewProposalRepository(log, postgresDB)
	approvalRepo := postgres.NewApprovalRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	auditRepo := postgres.NewAuditRepository(log, postgresDB)
	idempotencyRepo := postgres.NewIdempotencyRepository(log, postgresDB)
	deliveryLog := dmongo.NewDeliveryRepository(log, mongoDB.Database())

	// Load the declarative policy rule set
	engine, err := policy.LoadRules(cfg.Policy.RulesPath)
	if err != nil {
		log.Error("Failed to load policy rules", "error", err, "path", cfg.Policy.RulesPath)
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
	// dlqProducer might be nil if DLQTopic is not configured. Handler should be nil-safe.

	// Initialize the state machine and pipeline components
	machine := statemachine.NewMachine(log, postgresDB, jobRepo, auditRepo)
	publisher := components.NewOutboxPublisher(log, outboxRepo, cfg.Outbox.MaxRetryAttempts)
	intake := components.NewProposalIntake(log, machine, proposalRepo, auditRepo)
	poster := components.NewLedgerPoster(log, machine, proposalRepo, ledgerRepo, publisher, auditRepo)
	router := components.NewDecisionRouter(log, machine, proposalRepo, approvalRepo, publisher, auditRepo)
	failureRecorder := components.NewFailureRecorder(log, machine, jobRepo, publisher)

	// Initialize processing service behind a worker pool
	baseService := service.NewProcessingService(
		jobRepo, intake, engine, router, poster, failureRecorder, dlqProducer, log,
	)
	processingService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	// Initialize journal event handler
	journalEventHandler := consumer.NewJournalEventHandler(
		log,
		processingService,
		dlqProducer,
	)

	// Initialize outbox dispatcher
	subscriptions, err := dispatcher.LoadSubscriptions(cfg.Outbox.SubscriptionsPath)
	if err != nil {
		log.Error("Failed to load subscriptions", "error", err, "path", cfg.Outbox.SubscriptionsPath)
		os.Exit(1)
	}
	transports := map[string]dispatcher.Transport{
		dispatcher.TransportWebhook: dispatcher.NewWebhookTransport(log, cfg.Outbox.WebhookTimeout),
		dispatcher.TransportKafka:   dispatcher.NewKafkaTransport(log, cfg.Kafka.Brokers, cfg.Outbox.WebhookTimeout),
	}
	outboxDispatcher := dispatcher.NewDispatcher(
		&cfg.Outbox,
		outboxRepo,
		deliveryLog,
		subscriptions,
		transports,
		log,
	)

	// Initialize the housekeeping sweeper
	pipelineSweeper := sweeper.NewSweeper(
		&cfg.Pipeline,
		jobRepo,
		idempotencyRepo,
		poster,
		failureRecorder,
		log,
	)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.ProposalTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.ProposalTopic, cfg.Kafka.ConsumerGroup, journalEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start outbox dispatcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxDispatcher.Start(appCtx)
	}()

	// Start sweeper in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipelineSweeper.Start(appCtx)
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

	// Shutdown the worker pool
	log.Info("Shutting down worker pool", "running_workers", processingService.Running())
	processingService.Shutdown()

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

	// Close DLQ Kafka producer
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Close Kafka transport writers
	for _, t := range transports {
		if closer, ok := t.(interface{ Close() error }); ok {
			if err = closer.Close(); err != nil {
				log.Error("Error closing transport", "error", err)
			}
		}
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Pipeline Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Pipeline Worker shutdown completed with errors")
	} else {
		log.Info("Pipeline Worker shutdown completed successfully")
	}
}
