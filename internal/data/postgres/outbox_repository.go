package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `id, event_id, event_type, aggregate_type, aggregate_id, payload, status, attempts, max_attempts, scheduled_at, claimed_at, claimed_by, last_error, created_at`

// OutboxRepository implements the outbox.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create records an event for asynchronous delivery. For ledger.posted the
// partial unique index on (aggregate_type, aggregate_id) fires on a second
// insert and surfaces as ErrDuplicateEvent; callers treat that as proof the
// publish already happened.
func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	query := `
		INSERT INTO outbox_events (event_id, event_type, aggregate_type, aggregate_id, payload, status, attempts, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		e.EventID,
		e.EventType,
		e.AggregateType,
		e.AggregateID,
		e.Payload,
		e.Status,
		e.Attempts,
		e.MaxAttempts,
		e.ScheduledAt,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err, "outbox_events_ledger_posted_key") {
			return outbox.ErrDuplicateEvent{
				EventType:     e.EventType,
				AggregateType: e.AggregateType,
				AggregateID:   e.AggregateID,
			}
		}
		r.logger.Error("Failed to create outbox event", "event_type", e.EventType, "aggregate_id", e.AggregateID, "error", err)
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	return nil
}

// GetDue returns pending events whose scheduled_at has passed, oldest first.
// The id tiebreak keeps events published in the same transaction in insert
// order even when they share a timestamp.
func (r *OutboxRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*outbox.Event, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, shared.OutboxStatusPending, now, limit)
	if err != nil {
		r.logger.Error("Failed to get due outbox events", "error", err)
		return nil, fmt.Errorf("failed to get due outbox events: %w", err)
	}
	defer rows.Close()

	return r.collectEvents(rows)
}

// Claim atomically takes ownership of a pending event. The conditional update
// is the concurrency barrier: whichever dispatcher flips the row first wins
// and everyone else sees zero rows affected.
func (r *OutboxRepository) Claim(ctx context.Context, id int64, claimedBy string) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, claimed_at = $2, claimed_by = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusProcessing, time.Now().UTC(), claimedBy, id, shared.OutboxStatusPending)
	if err != nil {
		r.logger.Error("Failed to claim outbox event", "event_id", id, "error", err)
		return false, fmt.Errorf("failed to claim outbox event: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkDelivered finalizes a claimed event after successful delivery
func (r *OutboxRepository) MarkDelivered(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = $1, claimed_at = NULL, claimed_by = NULL, last_error = NULL
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusDelivered, id)
	if err != nil {
		r.logger.Error("Failed to mark outbox event delivered", "event_id", id, "error", err)
		return fmt.Errorf("failed to mark outbox event delivered: %w", err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrEventNotFound{ID: id}
	}

	return nil
}

// Reschedule returns a claimed event to pending with a new due time
func (r *OutboxRepository) Reschedule(ctx context.Context, id int64, at time.Time, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, scheduled_at = $2, last_error = $3, claimed_at = NULL, claimed_by = NULL
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusPending, at, lastError, id)
	if err != nil {
		r.logger.Error("Failed to reschedule outbox event", "event_id", id, "error", err)
		return fmt.Errorf("failed to reschedule outbox event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrEventNotFound{ID: id}
	}

	return nil
}

// MarkDeadLetter parks an event after its attempt budget is exhausted
func (r *OutboxRepository) MarkDeadLetter(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, last_error = $2, claimed_at = NULL, claimed_by = NULL
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusDeadLetter, lastError, id)
	if err != nil {
		r.logger.Error("Failed to dead-letter outbox event", "event_id", id, "error", err)
		return fmt.Errorf("failed to dead-letter outbox event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrEventNotFound{ID: id}
	}

	return nil
}

// ReclaimStale returns processing events whose claim outlived the lock timeout
// back to pending. Covers dispatchers that crashed between claim and outcome.
func (r *OutboxRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, claimed_at = NULL, claimed_by = NULL
		WHERE status = $2 AND claimed_at < $3
	`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusPending, shared.OutboxStatusProcessing, olderThan)
	if err != nil {
		r.logger.Error("Failed to reclaim stale outbox events", "error", err)
		return 0, fmt.Errorf("failed to reclaim stale outbox events: %w", err)
	}

	return result.RowsAffected(), nil
}

// GetByAggregate returns all events recorded for one aggregate, oldest first
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*outbox.Event, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, aggregateType, aggregateID)
	if err != nil {
		r.logger.Error("Failed to get outbox events by aggregate", "aggregate_type", aggregateType, "aggregate_id", aggregateID, "error", err)
		return nil, fmt.Errorf("failed to get outbox events by aggregate: %w", err)
	}
	defer rows.Close()

	return r.collectEvents(rows)
}

func (r *OutboxRepository) collectEvents(rows pgx.Rows) ([]*outbox.Event, error) {
	var events []*outbox.Event
	for rows.Next() {
		var e outbox.Event
		var claimedBy, lastError *string
		err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.EventType,
			&e.AggregateType,
			&e.AggregateID,
			&e.Payload,
			&e.Status,
			&e.Attempts,
			&e.MaxAttempts,
			&e.ScheduledAt,
			&e.ClaimedAt,
			&claimedBy,
			&lastError,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event row: %w", err)
		}
		if claimedBy != nil {
			e.ClaimedBy = *claimedBy
		}
		if lastError != nil {
			e.LastError = *lastError
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over outbox event rows: %w", err)
	}

	return events, nil
}
