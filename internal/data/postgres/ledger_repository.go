package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/ledger"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, proposal_id, job_id, lines, posted_by, posted_at, reversal_of`

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a posted entry. The partial unique index on proposal_id
// guarantees at most one non-reversal entry per proposal; a violation surfaces
// as ErrDuplicateEntry so callers can treat the posting as already done.
func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	linesJSON, err := json.Marshal(e.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger lines: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (id, proposal_id, job_id, lines, posted_by, posted_at, reversal_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.querier.Exec(ctx, query,
		e.ID,
		e.ProposalID,
		e.JobID,
		linesJSON,
		e.PostedBy,
		e.PostedAt,
		e.ReversalOf,
	)
	if err != nil {
		if isUniqueViolation(err, "ledger_entries_proposal_key") {
			return ledger.ErrDuplicateEntry{ProposalID: e.ProposalID}
		}
		r.logger.Error("Failed to create ledger entry", "proposal_id", e.ProposalID.String(), "error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

// GetByID retrieves a ledger entry by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`

	e, err := r.scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{}
		}
		r.logger.Error("Failed to get ledger entry", "entry_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return e, nil
}

// GetByProposalID retrieves the original (non-reversal) entry for a proposal
func (r *LedgerRepository) GetByProposalID(ctx context.Context, proposalID uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE proposal_id = $1 AND reversal_of IS NULL`

	e, err := r.scanEntry(r.querier.QueryRow(ctx, query, proposalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{ProposalID: proposalID}
		}
		r.logger.Error("Failed to get ledger entry by proposal", "proposal_id", proposalID.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry by proposal: %w", err)
	}

	return e, nil
}

// ListByJobID retrieves all entries posted for a job, reversals included,
// oldest first
func (r *LedgerRepository) ListByJobID(ctx context.Context, jobID uuid.UUID) ([]*ledger.Entry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE job_id = $1 ORDER BY posted_at ASC`

	rows, err := r.querier.Query(ctx, query, jobID)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "job_id", jobID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ledger entry rows: %w", err)
	}

	return entries, nil
}

func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	var linesJSON []byte
	err := row.Scan(
		&e.ID,
		&e.ProposalID,
		&e.JobID,
		&linesJSON,
		&e.PostedBy,
		&e.PostedAt,
		&e.ReversalOf,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &e.Lines); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger lines: %w", err)
	}
	return &e, nil
}
