package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/approval"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const approvalColumns = `id, proposal_id, job_id, status, approver, comment, decided_at, created_at`

// ApprovalRepository implements the approval.Repository interface for PostgreSQL
type ApprovalRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewApprovalRepository creates a new PostgreSQL approval repository
func NewApprovalRepository(logger *slog.Logger, db *persistence.PostgresDB) approval.Repository {
	return &ApprovalRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ApprovalRepository) WithTx(tx pgx.Tx) approval.Repository {
	return &ApprovalRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new approval row
func (r *ApprovalRepository) Create(ctx context.Context, a *approval.Approval) error {
	query := `
		INSERT INTO approvals (id, proposal_id, job_id, status, approver, comment, decided_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		a.ID,
		a.ProposalID,
		a.JobID,
		a.Status,
		nullableString(a.Approver),
		nullableString(a.Comment),
		a.DecidedAt,
		a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval", "approval_id", a.ID.String(), "job_id", a.JobID.String(), "error", err)
		return fmt.Errorf("failed to create approval: %w", err)
	}

	return nil
}

// GetByID retrieves an approval by its ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*approval.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	a, err := r.scanApproval(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, approval.ErrApprovalNotFound{ID: id}
		}
		r.logger.Error("Failed to get approval", "approval_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	return a, nil
}

// GetPendingByJobID retrieves the pending approval for a job.
// Returns nil, nil when the job has none.
func (r *ApprovalRepository) GetPendingByJobID(ctx context.Context, jobID uuid.UUID) (*approval.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE job_id = $1 AND status = $2`

	a, err := r.scanApproval(r.querier.QueryRow(ctx, query, jobID, shared.ApprovalStatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get pending approval", "job_id", jobID.String(), "error", err)
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}

	return a, nil
}

// ListPending retrieves a page of the approval inbox, oldest first
func (r *ApprovalRepository) ListPending(ctx context.Context, limit, offset int) ([]*approval.Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, shared.ApprovalStatusPending, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", "error", err)
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*approval.Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over approval rows: %w", err)
	}

	return approvals, nil
}

// CountPending counts the approval inbox
func (r *ApprovalRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM approvals WHERE status = $1`, shared.ApprovalStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	return count, nil
}

// Decide flips the approval from pending to a terminal status exactly once.
// The conditional update is the single-decision barrier: a second decision
// finds zero pending rows and gets ErrAlreadyDecided.
func (r *ApprovalRepository) Decide(ctx context.Context, id uuid.UUID, status shared.ApprovalStatus, approver, comment string) (*approval.Approval, error) {
	query := `
		UPDATE approvals
		SET status = $1, approver = $2, comment = $3, decided_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.querier.Exec(ctx, query, status, approver, nullableString(comment), time.Now().UTC(), id, shared.ApprovalStatusPending)
	if err != nil {
		r.logger.Error("Failed to decide approval", "approval_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to decide approval: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, approval.ErrAlreadyDecided{ID: id}
	}

	return r.GetByID(ctx, id)
}

func (r *ApprovalRepository) scanApproval(row pgx.Row) (*approval.Approval, error) {
	var a approval.Approval
	var approver, comment *string
	err := row.Scan(
		&a.ID,
		&a.ProposalID,
		&a.JobID,
		&a.Status,
		&approver,
		&comment,
		&a.DecidedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if approver != nil {
		a.Approver = *approver
	}
	if comment != nil {
		a.Comment = *comment
	}
	return &a, nil
}
