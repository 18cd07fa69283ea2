package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// AuditRepository implements the audit.Recorder interface for PostgreSQL.
// The audit_events table is insert-only; no update or delete statement exists
// in this file on purpose.
type AuditRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewAuditRepository creates a new PostgreSQL audit recorder
func NewAuditRepository(logger *slog.Logger, db *persistence.PostgresDB) audit.Recorder {
	return &AuditRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *AuditRepository) WithTx(tx pgx.Tx) audit.Recorder {
	return &AuditRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Record appends one audit event
func (r *AuditRepository) Record(ctx context.Context, e *audit.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (action, entity_type, entity_id, actor, old_state, new_state, trace_id, payload, corrects_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		e.Action,
		e.EntityType,
		e.EntityID,
		e.Actor,
		nullableString(e.OldState),
		nullableString(e.NewState),
		nullableString(e.TraceID),
		e.Payload,
		e.CorrectsID,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		r.logger.Error("Failed to record audit event", "action", e.Action, "entity_id", e.EntityID, "error", err)
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// ListByEntity retrieves audit history for one entity, oldest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*audit.Event, error) {
	query := `
		SELECT id, action, entity_type, entity_id, actor, old_state, new_state, trace_id, payload, corrects_id, created_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.querier.Query(ctx, query, entityType, entityID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list audit events", "entity_type", entityType, "entity_id", entityID, "error", err)
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var e audit.Event
		var oldState, newState, traceID *string
		err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.EntityType,
			&e.EntityID,
			&e.Actor,
			&oldState,
			&newState,
			&traceID,
			&e.Payload,
			&e.CorrectsID,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event row: %w", err)
		}
		if oldState != nil {
			e.OldState = *oldState
		}
		if newState != nil {
			e.NewState = *newState
		}
		if traceID != nil {
			e.TraceID = *traceID
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over audit event rows: %w", err)
	}

	return events, nil
}
