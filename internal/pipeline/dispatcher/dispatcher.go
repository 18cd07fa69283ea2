package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/doculedger-governance/internal/config"
	dmongo "github.com/doculedger-governance/internal/data/mongo"
	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/google/uuid"
)

// Dispatcher drains the outbox and delivers events to the configured
// subscriptions. Claims are conditional updates on the event row, so any
// number of dispatcher instances can run against the same table. Delivery is
// at-least-once per subscription: an event with several subscribers retries
// all of them until every one has accepted it.
type Dispatcher struct {
	outboxRepo    outbox.Repository
	deliveryLog   dmongo.DeliveryLog
	subscriptions []Subscription
	transports    map[string]Transport
	instanceID    string
	logger        *slog.Logger

	pollInterval   time.Duration
	batchSize      int
	lockTimeout    time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewDispatcher(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	deliveryLog dmongo.DeliveryLog,
	subscriptions []Subscription,
	transports map[string]Transport,
	logger *slog.Logger,
) *Dispatcher {
	hostname, _ := os.Hostname()
	return &Dispatcher{
		outboxRepo:     outboxRepo,
		deliveryLog:    deliveryLog,
		subscriptions:  subscriptions,
		transports:     transports,
		instanceID:     fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		logger:         logger,
		pollInterval:   cfg.PollingInterval,
		batchSize:      cfg.BatchSize,
		lockTimeout:    cfg.LockTimeout,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// Start begins polling until context is canceled
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting outbox dispatcher",
		"instance_id", d.instanceID,
		"poll_interval", d.pollInterval.String(),
		"batch_size", d.batchSize,
		"subscriptions", len(d.subscriptions),
	)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := d.processDueEvents(ctx); err != nil {
				d.logger.Error("Error during batch processing of due outbox events", "error", err)
			}
		}
	}
}

func (d *Dispatcher) processDueEvents(ctx context.Context) error {
	now := time.Now().UTC()

	// Hand back claims from dispatchers that died mid-batch.
	reclaimed, err := d.outboxRepo.ReclaimStale(ctx, now.Add(-d.lockTimeout))
	if err != nil {
		d.logger.Error("Failed to reclaim stale outbox claims", "error", err)
	} else if reclaimed > 0 {
		d.logger.Warn("Reclaimed stale outbox claims", "count", reclaimed)
	}

	events, err := d.outboxRepo.GetDue(ctx, now, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get due outbox events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("Fetched due outbox events", "count", len(events))

	for _, e := range events {
		claimed, err := d.outboxRepo.Claim(ctx, e.ID, d.instanceID)
		if err != nil {
			d.logger.Error("Failed to claim outbox event", "outbox_id", e.ID, "error", err)
			continue
		}
		if !claimed {
			// Another instance won the row.
			continue
		}
		e.Attempts++

		d.dispatchEvent(ctx, e)
	}
	return nil
}

// dispatchEvent delivers one claimed event to every matching subscription and
// settles the row: delivered, rescheduled with backoff, or dead-lettered.
func (d *Dispatcher) dispatchEvent(ctx context.Context, e *outbox.Event) {
	logger := d.logger.With("outbox_id", e.ID, "event_type", e.EventType, "attempt", e.Attempts)

	var firstErr error
	delivered := 0
	matched := 0

	for i := range d.subscriptions {
		sub := &d.subscriptions[i]
		if !sub.Matches(e.EventType) {
			continue
		}
		matched++

		transport, ok := d.transports[sub.Transport]
		if !ok {
			logger.Error("No transport registered for subscription", "subscription", sub.Name, "transport", sub.Transport)
			if firstErr == nil {
				firstErr = fmt.Errorf("no transport %q for subscription %q", sub.Transport, sub.Name)
			}
			continue
		}

		start := time.Now()
		err := transport.Deliver(ctx, sub, e)
		d.recordAttempt(ctx, e, sub, err, time.Since(start))

		if err != nil {
			logger.Error("Delivery failed", "subscription", sub.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered++
	}

	if matched == 0 {
		// Nothing subscribes to this event type; treat as delivered so the
		// row does not sit in the queue forever.
		logger.Debug("No subscriptions match event type, marking delivered")
	}

	if firstErr == nil {
		if err := d.outboxRepo.MarkDelivered(ctx, e.ID); err != nil {
			logger.Error("Failed to mark outbox event delivered", "error", err)
		}
		return
	}

	if e.Attempts >= e.MaxAttempts {
		logger.Warn("Attempt budget exhausted, dead-lettering outbox event", "last_error", firstErr)
		e.LastError = firstErr.Error()
		if d.deliveryLog != nil {
			if err := d.deliveryLog.ArchiveDeadLetter(ctx, e); err != nil {
				logger.Error("Failed to archive dead-lettered event", "error", err)
			}
		}
		if err := d.outboxRepo.MarkDeadLetter(ctx, e.ID, firstErr.Error()); err != nil {
			logger.Error("Failed to mark outbox event dead-lettered", "error", err)
		}
		return
	}

	next := time.Now().UTC().Add(d.backoff(e.Attempts))
	if err := d.outboxRepo.Reschedule(ctx, e.ID, next, firstErr.Error()); err != nil {
		logger.Error("Failed to reschedule outbox event", "error", err)
		return
	}
	logger.Info("Rescheduled outbox event", "next_attempt_at", next, "delivered_subscriptions", delivered)
}

// backoff is initial * 2^(attempts-1), capped at the configured maximum
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.initialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.maxBackoff {
			return d.maxBackoff
		}
	}
	if delay > d.maxBackoff {
		return d.maxBackoff
	}
	return delay
}

func (d *Dispatcher) recordAttempt(ctx context.Context, e *outbox.Event, sub *Subscription, deliveryErr error, took time.Duration) {
	if d.deliveryLog == nil {
		return
	}

	target := sub.URL
	if sub.Transport == TransportKafka {
		target = sub.Topic
	}

	attempt := &dmongo.DeliveryAttempt{
		EventID:      e.EventID,
		EventType:    e.EventType,
		Subscription: sub.Name,
		Transport:    sub.Transport,
		Target:       target,
		Attempt:      e.Attempts,
		Success:      deliveryErr == nil,
		Duration:     took.Milliseconds(),
		AttemptedAt:  time.Now().UTC(),
	}
	if deliveryErr != nil {
		attempt.Error = deliveryErr.Error()
	}

	if err := d.deliveryLog.RecordAttempt(ctx, attempt); err != nil {
		d.logger.Error("Failed to record delivery attempt", "outbox_id", e.ID, "error", err)
	}
}
