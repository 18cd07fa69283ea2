package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/doculedger-governance/internal/api_gateway"
	"github.com/doculedger-governance/internal/api_gateway/service"
	"github.com/doculedger-governance/internal/config"
	"github.com/doculedger-governance/internal/data/postgres"
	"github.com/doculedger-governance/internal/domain/idempotency"
	"github.com/doculedger-governance/internal/logger"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/doculedger-governance/internal/platform/messaging/producers"
	"github.com/doculedger-governance/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize database with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for the proposal topic
	journalProducer, err := producers.NewProposalJournalProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize journal Kafka producer", "error", err)
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

	// Initialize the state machine and the idempotent executor
	machine := statemachine.NewMachine(log, postgresDB, jobRepo, auditRepo)
	executor := idempotency.NewExecutor(idempotencyRepo, idempotency.Config{
		TTL:          cfg.Idempotency.TTL,
		PollInterval: cfg.Idempotency.PollInterval,
		WaitDeadline: cfg.Idempotency.WaitDeadline,
	}, log)

	// Initialize services
	documentService := service.NewDocumentService(
		log, postgresDB, jobRepo, outboxRepo, auditRepo, executor, journalProducer,
		cfg.Pipeline.JobMaxAttempts, cfg.Outbox.MaxRetryAttempts,
	)
	jobService := service.NewJobService(log, jobRepo, auditRepo, outboxRepo)
	approvalService := service.NewApprovalService(
		log, machine, approvalRepo, proposalRepo, outboxRepo, auditRepo,
		cfg.Outbox.MaxRetryAttempts,
	)
	ledgerService := service.NewLedgerService(log, postgresDB, ledgerRepo, proposalRepo, auditRepo)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, documentService, jobService, approvalService, ledgerService)
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

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = journalProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

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
