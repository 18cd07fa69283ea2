package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/jackc/pgx/v5"
)

// OutboxPublisher records business events in the same transaction as the state
// change they describe. It never talks to a broker; delivery belongs to the
// dispatcher.
type OutboxPublisher struct {
	events      outbox.Repository
	maxAttempts int
	logger      *slog.Logger
}

func NewOutboxPublisher(logger *slog.Logger, events outbox.Repository, maxAttempts int) *OutboxPublisher {
	return &OutboxPublisher{
		events:      events,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Publish records one event on the given transaction. A duplicate of a
// uniqueness-critical event is swallowed: the first insert already made the
// publish durable, so a replay has nothing left to do.
func (p *OutboxPublisher) Publish(ctx context.Context, tx pgx.Tx, eventType, aggregateType, aggregateID string, payload interface{}) error {
	e, err := outbox.NewEvent(eventType, aggregateType, aggregateID, payload, p.maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to build outbox event: %w", err)
	}

	if err := p.events.WithTx(tx).Create(ctx, e); err != nil {
		if errors.Is(err, outbox.ErrDuplicateEvent{}) {
			p.logger.Debug("Outbox event already recorded",
				"event_type", eventType,
				"aggregate_type", aggregateType,
				"aggregate_id", aggregateID,
			)
			return nil
		}
		return err
	}

	p.logger.Debug("Outbox event recorded",
		"event_type", eventType,
		"aggregate_id", aggregateID,
	)
	return nil
}
