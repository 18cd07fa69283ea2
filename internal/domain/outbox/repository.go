package outbox

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository manages transactional outbox persistence. Claim and the status
// mutations are conditional updates, so any number of dispatcher instances
// can run concurrently without a distributed lock.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	// GetDue returns pending events with scheduled_at <= now, oldest first
	GetDue(ctx context.Context, now time.Time, limit int) ([]*Event, error)
	// Claim atomically moves a pending event to processing and increments its
	// attempt counter. Returns false if another dispatcher won the row.
	Claim(ctx context.Context, id int64, claimedBy string) (bool, error)
	MarkDelivered(ctx context.Context, id int64) error
	// Reschedule returns a claimed event to pending with a new due time
	Reschedule(ctx context.Context, id int64, at time.Time, lastError string) error
	MarkDeadLetter(ctx context.Context, id int64, lastError string) error
	// ReclaimStale returns processing events whose claim outlived the lock
	// timeout back to pending (dispatcher crashed mid-batch)
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Event, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrEventNotFound indicates a missing outbox event
type ErrEventNotFound struct {
	ID int64
}

func (e ErrEventNotFound) Error() string {
	return "outbox event not found: " + strconv.FormatInt(e.ID, 10)
}

// ErrDuplicateEvent indicates the per-aggregate uniqueness constraint fired
// for a uniqueness-critical event type. The event already exists, so the
// publish is already durable.
type ErrDuplicateEvent struct {
	EventType     string
	AggregateType string
	AggregateID   string
}

func (e ErrDuplicateEvent) Error() string {
	return "duplicate outbox event " + e.EventType + " for " + e.AggregateType + "/" + e.AggregateID
}

func (e ErrDuplicateEvent) Is(target error) bool {
	_, ok := target.(ErrDuplicateEvent)
	return ok
}
