// Package config provides configuration structures and validation for the
// application. It handles environment-based configuration for all major
// components including the HTTP server, database connections, the proposal
// consumer, the outbox dispatcher, and pipeline housekeeping.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents
// a major subsystem's configuration and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	Idempotency IdempotencyConfig
	Policy      PolicyConfig
	Pipeline    PipelineConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig contains Kafka configuration for the proposal topic consumed
// from the extraction subsystem and the DLQ for poison messages
type KafkaConfig struct {
	Brokers           string
	ProposalTopic     string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the delivery log and
// dead-letter archive
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox dispatcher configuration
type OutboxConfig struct {
	PollingInterval   time.Duration
	BatchSize         int
	MaxRetryAttempts  int
	LockTimeout       time.Duration // claim age after which a processing row is reclaimed
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	WebhookTimeout    time.Duration
	SubscriptionsPath string // YAML file declaring event subscriptions
}

// IdempotencyConfig bounds the idempotency key window and the wait for a
// concurrent owner of the same key
type IdempotencyConfig struct {
	TTL          time.Duration
	PollInterval time.Duration
	WaitDeadline time.Duration
}

// PolicyConfig locates the declarative policy rule set
type PolicyConfig struct {
	RulesPath string
}

// PipelineConfig contains job state machine and housekeeping configuration
type PipelineConfig struct {
	JobMaxAttempts    int
	SweepInterval     time.Duration
	ProcessingTimeout time.Duration // window after which a stuck PROCESSING job is swept
	SweepBatchSize    int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// validate performs comprehensive validation of all configuration values
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	if c.Kafka.Brokers == "" {
		validationErrors = append(validationErrors, "KAFKA_BROKERS must not be empty")
	}
	if c.Kafka.ProposalTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PROPOSAL_TOPIC must not be empty")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP must not be empty")
	}

	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL must not be empty")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns < 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must not be negative")
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must not exceed POSTGRES_MAX_CONNS")
	}

	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI must not be empty")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE must not be empty")
	}

	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}
	if c.Outbox.LockTimeout <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_LOCK_TIMEOUT must be greater than 0")
	}
	if c.Outbox.InitialBackoff <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_INITIAL_BACKOFF must be greater than 0")
	}
	if c.Outbox.MaxBackoff < c.Outbox.InitialBackoff {
		validationErrors = append(validationErrors, "OUTBOX_MAX_BACKOFF must not be less than OUTBOX_INITIAL_BACKOFF")
	}

	if c.Idempotency.TTL <= 0 {
		validationErrors = append(validationErrors, "IDEMPOTENCY_TTL must be greater than 0")
	}
	if c.Idempotency.PollInterval <= 0 {
		validationErrors = append(validationErrors, "IDEMPOTENCY_POLL_INTERVAL must be greater than 0")
	}
	if c.Idempotency.WaitDeadline <= 0 {
		validationErrors = append(validationErrors, "IDEMPOTENCY_WAIT_DEADLINE must be greater than 0")
	}

	if c.Policy.RulesPath == "" {
		validationErrors = append(validationErrors, "POLICY_RULES_PATH must not be empty")
	}

	if c.Pipeline.JobMaxAttempts <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_JOB_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Pipeline.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Pipeline.ProcessingTimeout <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_PROCESSING_TIMEOUT must be greater than 0")
	}
	if c.Pipeline.SweepBatchSize <= 0 {
		validationErrors = append(validationErrors, "PIPELINE_SWEEP_BATCH_SIZE must be greater than 0")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(validationErrors, "; "))
	}

	return nil
}
