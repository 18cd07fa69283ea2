package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/idempotency"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// IdempotencyRepository implements the idempotency.Store interface for PostgreSQL
type IdempotencyRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewIdempotencyRepository creates a new PostgreSQL idempotency store
func NewIdempotencyRepository(logger *slog.Logger, db *persistence.PostgresDB) idempotency.Store {
	return &IdempotencyRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Insert claims a key for the current execution. ON CONFLICT DO NOTHING plus
// the rows-affected check makes the race between two concurrent inserts
// resolve to exactly one winner.
func (r *IdempotencyRepository) Insert(ctx context.Context, k *idempotency.Key) error {
	query := `
		INSERT INTO idempotency_keys (key, operation, status, response_snapshot, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query,
		k.Key,
		k.Operation,
		k.Status,
		k.ResponseSnapshot,
		k.ExpiresAt,
		k.CreatedAt,
		k.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert idempotency key", "key", k.Key, "error", err)
		return fmt.Errorf("failed to insert idempotency key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return idempotency.ErrKeyExists
	}

	return nil
}

// Get retrieves a key with its stored outcome
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Key, error) {
	query := `
		SELECT key, operation, status, response_snapshot, expires_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var k idempotency.Key
	err := r.querier.QueryRow(ctx, query, key).Scan(
		&k.Key,
		&k.Operation,
		&k.Status,
		&k.ResponseSnapshot,
		&k.ExpiresAt,
		&k.CreatedAt,
		&k.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idempotency.ErrKeyNotFound{Key: key}
		}
		r.logger.Error("Failed to get idempotency key", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	return &k, nil
}

// Finish records the outcome snapshot of the owning execution
func (r *IdempotencyRepository) Finish(ctx context.Context, key string, status shared.IdempotencyStatus, snapshot []byte) error {
	query := `
		UPDATE idempotency_keys
		SET status = $1, response_snapshot = $2, updated_at = $3
		WHERE key = $4
	`

	result, err := r.querier.Exec(ctx, query, status, snapshot, time.Now().UTC(), key)
	if err != nil {
		r.logger.Error("Failed to finish idempotency key", "key", key, "error", err)
		return fmt.Errorf("failed to finish idempotency key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return idempotency.ErrKeyNotFound{Key: key}
	}

	return nil
}

// TakeOverExpired re-arms an expired key for a new execution. The expiry check
// lives in the WHERE clause, so two racing take-overs resolve to one winner.
func (r *IdempotencyRepository) TakeOverExpired(ctx context.Context, key string, newExpiry time.Time) (bool, error) {
	now := time.Now().UTC()
	query := `
		UPDATE idempotency_keys
		SET status = $1, response_snapshot = NULL, expires_at = $2, created_at = $3, updated_at = $3
		WHERE key = $4 AND expires_at < $3
	`

	result, err := r.querier.Exec(ctx, query, shared.IdempotencyStatusProcessing, newExpiry, now, key)
	if err != nil {
		r.logger.Error("Failed to take over expired idempotency key", "key", key, "error", err)
		return false, fmt.Errorf("failed to take over expired idempotency key: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// DeleteExpired removes keys whose window passed before olderThan
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.querier.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, olderThan)
	if err != nil {
		r.logger.Error("Failed to delete expired idempotency keys", "error", err)
		return 0, fmt.Errorf("failed to delete expired idempotency keys: %w", err)
	}

	return result.RowsAffected(), nil
}
