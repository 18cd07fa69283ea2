package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
)

// Result is the outcome of an idempotent execution. Replayed distinguishes a
// stored snapshot from a fresh run, surfaced to API clients as a replay flag.
type Result struct {
	Value    json.RawMessage `json:"value"`
	Replayed bool            `json:"replayed"`
}

// ErrReplayedFailure carries the stored failure of the first execution back
// to a replaying caller
type ErrReplayedFailure struct {
	Key     string
	Message string
}

func (e ErrReplayedFailure) Error() string {
	return "replayed failed operation " + e.Key + ": " + e.Message
}

func (e ErrReplayedFailure) Is(target error) bool {
	_, ok := target.(ErrReplayedFailure)
	return ok
}

// ErrorClass marks replayed failures terminal: re-running would break replay semantics
func (e ErrReplayedFailure) ErrorClass() shared.Class {
	return shared.ClassTerminal
}

type failureSnapshot struct {
	Error string `json:"error"`
}

// Config bounds the idempotency window and the wait for a concurrent owner
type Config struct {
	TTL          time.Duration
	PollInterval time.Duration
	WaitDeadline time.Duration
}

// Executor wraps mutating operations with key-based idempotency
type Executor struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

func NewExecutor(store Store, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{store: store, cfg: cfg, logger: logger}
}

// Execute runs fn at most once per key within the expiry window. The first
// caller owns the key and executes; concurrent callers wait (bounded) for the
// owner's snapshot; later callers replay it without re-executing side effects.
func (e *Executor) Execute(ctx context.Context, key, operation string, fn func(ctx context.Context) (interface{}, error)) (Result, error) {
	k := NewKey(key, operation, e.cfg.TTL)

	err := e.store.Insert(ctx, k)
	if err == nil {
		return e.run(ctx, key, fn)
	}
	if !errors.Is(err, ErrKeyExists) {
		return Result{}, fmt.Errorf("failed to insert idempotency key %s: %w", key, err)
	}

	existing, err := e.store.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load idempotency key %s: %w", key, err)
	}

	// Expiry makes the key reusable by a logically new request; it never
	// invalidates snapshots already returned.
	if existing.Expired(time.Now().UTC()) {
		taken, err := e.store.TakeOverExpired(ctx, key, time.Now().UTC().Add(e.cfg.TTL))
		if err != nil {
			return Result{}, fmt.Errorf("failed to take over expired idempotency key %s: %w", key, err)
		}
		if taken {
			return e.run(ctx, key, fn)
		}
	}

	return e.awaitOwner(ctx, key)
}

func (e *Executor) run(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (Result, error) {
	value, fnErr := fn(ctx)
	if fnErr != nil {
		snapshot, _ := json.Marshal(failureSnapshot{Error: fnErr.Error()})
		if err := e.store.Finish(ctx, key, shared.IdempotencyStatusFailed, snapshot); err != nil {
			e.logger.Error("Failed to record idempotency failure snapshot", "key", key, "error", err)
		}
		return Result{}, fnErr
	}

	snapshot, err := json.Marshal(value)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal response snapshot for key %s: %w", key, err)
	}
	if err := e.store.Finish(ctx, key, shared.IdempotencyStatusCompleted, snapshot); err != nil {
		return Result{}, fmt.Errorf("failed to complete idempotency key %s: %w", key, err)
	}
	return Result{Value: snapshot}, nil
}

// awaitOwner polls until the owning execution leaves processing or the
// bounded wait elapses
func (e *Executor) awaitOwner(ctx context.Context, key string) (Result, error) {
	deadline := time.Now().Add(e.cfg.WaitDeadline)
	for {
		existing, err := e.store.Get(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("failed to poll idempotency key %s: %w", key, err)
		}

		switch existing.Status {
		case shared.IdempotencyStatusCompleted:
			return Result{Value: existing.ResponseSnapshot, Replayed: true}, nil
		case shared.IdempotencyStatusFailed:
			var snap failureSnapshot
			_ = json.Unmarshal(existing.ResponseSnapshot, &snap)
			return Result{Value: existing.ResponseSnapshot, Replayed: true}, ErrReplayedFailure{Key: key, Message: snap.Error}
		}

		if time.Now().After(deadline) {
			return Result{}, ErrConflictInProgress{Key: key}
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}
