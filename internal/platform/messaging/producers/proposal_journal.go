package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/config"
	"github.com/segmentio/kafka-go"
)

// ProposalJournalProducer publishes scanner output onto the proposal topic for
// the pipeline worker. Writes are synchronous: the upload endpoint must not
// acknowledge a document whose journal never reached the broker.
type ProposalJournalProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewProposalJournalProducer creates the gateway-side producer and ensures the topic exists
func NewProposalJournalProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*ProposalJournalProducer, error) {
	if cfg.ProposalTopic == "" {
		return nil, fmt.Errorf("kafka proposal topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for proposal journal producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.ProposalTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure proposal topic %s exists: %w", cfg.ProposalTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.ProposalTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write proposal messages", "topic", cfg.ProposalTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote proposal messages", "topic", cfg.ProposalTopic, "count", len(messages))
			}
		},
	}

	return &ProposalJournalProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.ProposalTopic,
	}, nil
}

// Publish writes one message keyed by job ID so all journals for a job land on
// the same partition and stay ordered
func (p *ProposalJournalProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal journal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish proposal journal",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish proposal journal to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published proposal journal",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *ProposalJournalProducer) Close() error {
	p.logger.Info("Closing proposal journal Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
