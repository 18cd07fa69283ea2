package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/segmentio/kafka-go"
)

// Envelope is the wire shape of one dispatched event
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func envelopeFor(e *outbox.Event) Envelope {
	return Envelope{
		EventID:       e.EventID.String(),
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		OccurredAt:    e.CreatedAt,
	}
}

// Transport delivers an event to one subscription target
type Transport interface {
	Deliver(ctx context.Context, sub *Subscription, e *outbox.Event) error
}

// WebhookTransport POSTs event envelopes to subscriber URLs. Any non-2xx
// response counts as a failed delivery.
type WebhookTransport struct {
	client *http.Client
	logger *slog.Logger
}

func NewWebhookTransport(logger *slog.Logger, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (t *WebhookTransport) Deliver(ctx context.Context, sub *Subscription, e *outbox.Event) error {
	body, err := json.Marshal(envelopeFor(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request for %s: %w", sub.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", e.EventID.String())
	req.Header.Set("X-Event-Type", e.EventType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery to %s failed: %w", sub.Name, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", sub.Name, resp.StatusCode)
	}

	t.logger.Debug("Webhook delivery succeeded",
		"subscription", sub.Name,
		"event_id", e.EventID.String(),
		"status", resp.StatusCode,
	)
	return nil
}

// KafkaTransport republishes event envelopes onto subscriber topics. One
// writer serves all topics; each message names its own topic.
type KafkaTransport struct {
	writer KafkaWriter
	logger *slog.Logger
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaTransport(logger *slog.Logger, brokers string, writeTimeout time.Duration) *KafkaTransport {
	return &KafkaTransport{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			WriteTimeout: writeTimeout,
		},
	}
}

func (t *KafkaTransport) Deliver(ctx context.Context, sub *Subscription, e *outbox.Event) error {
	body, err := json.Marshal(envelopeFor(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	msg := kafka.Message{
		Topic: sub.Topic,
		Key:   []byte(e.AggregateID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(e.EventID.String())},
			{Key: "event-type", Value: []byte(e.EventType)},
		},
	}

	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka delivery to topic %s failed: %w", sub.Topic, err)
	}

	t.logger.Debug("Kafka delivery succeeded",
		"subscription", sub.Name,
		"topic", sub.Topic,
		"event_id", e.EventID.String(),
	)
	return nil
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
