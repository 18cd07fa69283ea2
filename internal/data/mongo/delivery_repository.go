package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/google/uuid"
)

const (
	// DeliveryAttemptsCollectionName is the name of the delivery attempt log collection in MongoDB
	DeliveryAttemptsCollectionName = "delivery_attempts"
	// DeadLetterCollectionName is the name of the dead-lettered event archive collection in MongoDB
	DeadLetterCollectionName = "dead_letter_events"
)

// DeliveryAttempt is one recorded delivery try for an outbox event. The log is
// advisory: delivery correctness lives in the outbox table, this collection
// exists for operators chasing a flaky subscriber.
type DeliveryAttempt struct {
	EventID      uuid.UUID `bson:"event_id" json:"event_id"`
	EventType    string    `bson:"event_type" json:"event_type"`
	Subscription string    `bson:"subscription" json:"subscription"`
	Transport    string    `bson:"transport" json:"transport"`
	Target       string    `bson:"target" json:"target"`
	Attempt      int       `bson:"attempt" json:"attempt"`
	Success      bool      `bson:"success" json:"success"`
	Error        string    `bson:"error,omitempty" json:"error,omitempty"`
	Duration     int64     `bson:"duration_ms" json:"duration_ms"`
	AttemptedAt  time.Time `bson:"attempted_at" json:"attempted_at"`
}

// DeadLetterEvent is the archived copy of an outbox event that exhausted its
// attempt budget, stored with its full payload for manual replay.
type DeadLetterEvent struct {
	EventID       uuid.UUID       `bson:"event_id" json:"event_id"`
	EventType     string          `bson:"event_type" json:"event_type"`
	AggregateType string          `bson:"aggregate_type" json:"aggregate_type"`
	AggregateID   string          `bson:"aggregate_id" json:"aggregate_id"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	Attempts      int             `bson:"attempts" json:"attempts"`
	LastError     string          `bson:"last_error" json:"last_error"`
	CreatedAt     time.Time       `bson:"created_at" json:"created_at"`
	ArchivedAt    time.Time       `bson:"archived_at" json:"archived_at"`
}

// DeliveryLog records dispatcher delivery attempts and archives dead-lettered
// events for later inspection
type DeliveryLog interface {
	RecordAttempt(ctx context.Context, attempt *DeliveryAttempt) error
	ListAttempts(ctx context.Context, eventID uuid.UUID) ([]*DeliveryAttempt, error)
	ArchiveDeadLetter(ctx context.Context, e *outbox.Event) error
	ListDeadLetters(ctx context.Context, limit, offset int) ([]*DeadLetterEvent, error)
}

// DeliveryRepository implements the DeliveryLog interface for MongoDB
type DeliveryRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewDeliveryRepository creates a new MongoDB delivery log
func NewDeliveryRepository(logger *slog.Logger, db *mongo.Database) DeliveryLog {
	return &DeliveryRepository{
		db:     db,
		logger: logger,
	}
}

// RecordAttempt appends one delivery attempt record
func (r *DeliveryRepository) RecordAttempt(ctx context.Context, attempt *DeliveryAttempt) error {
	collection := r.db.Collection(DeliveryAttemptsCollectionName)

	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}

	_, err := collection.InsertOne(ctx, attempt)
	if err != nil {
		r.logger.Error("Failed to record delivery attempt",
			"event_id", attempt.EventID.String(),
			"subscription", attempt.Subscription,
			"error", err)
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	return nil
}

// ListAttempts retrieves all delivery attempts for an event, oldest first
func (r *DeliveryRepository) ListAttempts(ctx context.Context, eventID uuid.UUID) ([]*DeliveryAttempt, error) {
	collection := r.db.Collection(DeliveryAttemptsCollectionName)

	filter := bson.M{"event_id": eventID}
	opts := options.Find().SetSort(bson.M{"attempted_at": 1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list delivery attempts",
			"event_id", eventID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []*DeliveryAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		r.logger.Error("Failed to decode delivery attempts",
			"event_id", eventID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode delivery attempts: %w", err)
	}

	return attempts, nil
}

// ArchiveDeadLetter stores the full event in the dead-letter archive
func (r *DeliveryRepository) ArchiveDeadLetter(ctx context.Context, e *outbox.Event) error {
	collection := r.db.Collection(DeadLetterCollectionName)

	doc := &DeadLetterEvent{
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		CreatedAt:     e.CreatedAt,
		ArchivedAt:    time.Now().UTC(),
	}

	_, err := collection.InsertOne(ctx, doc)
	if err != nil {
		r.logger.Error("Failed to archive dead-lettered event",
			"event_id", e.EventID.String(),
			"event_type", e.EventType,
			"error", err)
		return fmt.Errorf("failed to archive dead-lettered event: %w", err)
	}

	return nil
}

// ListDeadLetters retrieves paginated dead-lettered events, newest first
func (r *DeliveryRepository) ListDeadLetters(ctx context.Context, limit, offset int) ([]*DeadLetterEvent, error) {
	collection := r.db.Collection(DeadLetterCollectionName)

	opts := options.Find().
		SetSort(bson.M{"archived_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		r.logger.Error("Failed to list dead-lettered events", "error", err)
		return nil, fmt.Errorf("failed to list dead-lettered events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*DeadLetterEvent
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode dead-lettered events", "error", err)
		return nil, fmt.Errorf("failed to decode dead-lettered events: %w", err)
	}

	return events, nil
}
