package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProposalRepository implements the proposal.Repository interface for PostgreSQL.
// Lines and vendor are stored as JSONB documents on the row.
type ProposalRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewProposalRepository creates a new PostgreSQL proposal repository
func NewProposalRepository(logger *slog.Logger, db *persistence.PostgresDB) proposal.Repository {
	return &ProposalRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ProposalRepository) WithTx(tx pgx.Tx) proposal.Repository {
	return &ProposalRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new proposal. The partial unique index on (job_id) for
// non-superseded rows guarantees a single current proposal per job; call
// SupersedeByJobID first when replacing one.
func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	lines, err := json.Marshal(p.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal lines: %w", err)
	}
	vendor, err := json.Marshal(p.Vendor)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal vendor: %w", err)
	}

	query := `
		INSERT INTO proposals (id, job_id, vendor, currency, lines, confidence, risk_level, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.querier.Exec(ctx, query,
		p.ID,
		p.JobID,
		vendor,
		p.Currency,
		lines,
		p.Confidence,
		p.RiskLevel,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create proposal", "proposal_id", p.ID.String(), "job_id", p.JobID.String(), "error", err)
		return fmt.Errorf("failed to create proposal: %w", err)
	}

	return nil
}

// GetByID retrieves a proposal by its ID
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	query := `
		SELECT id, job_id, vendor, currency, lines, confidence, risk_level, status, created_at
		FROM proposals
		WHERE id = $1
	`

	p, err := r.scanProposal(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, proposal.ErrProposalNotFound{ID: id}
		}
		r.logger.Error("Failed to get proposal", "proposal_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	return p, nil
}

// GetCurrentByJobID retrieves the one non-superseded proposal for a job.
// Returns nil, nil when the job has no current proposal.
func (r *ProposalRepository) GetCurrentByJobID(ctx context.Context, jobID uuid.UUID) (*proposal.Proposal, error) {
	query := `
		SELECT id, job_id, vendor, currency, lines, confidence, risk_level, status, created_at
		FROM proposals
		WHERE job_id = $1 AND status <> $2
	`

	p, err := r.scanProposal(r.querier.QueryRow(ctx, query, jobID, shared.ProposalStatusSuperseded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get current proposal", "job_id", jobID.String(), "error", err)
		return nil, fmt.Errorf("failed to get current proposal: %w", err)
	}

	return p, nil
}

// UpdateStatus moves a proposal to a new status
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.ProposalStatus) error {
	result, err := r.querier.Exec(ctx, `UPDATE proposals SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		r.logger.Error("Failed to update proposal status", "proposal_id", id.String(), "status", string(status), "error", err)
		return fmt.Errorf("failed to update proposal status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return proposal.ErrProposalNotFound{ID: id}
	}

	return nil
}

// SupersedeByJobID retires any current proposal for the job. Zero affected
// rows is fine: the job simply had no proposal yet.
func (r *ProposalRepository) SupersedeByJobID(ctx context.Context, jobID uuid.UUID) error {
	query := `UPDATE proposals SET status = $1 WHERE job_id = $2 AND status <> $1`

	_, err := r.querier.Exec(ctx, query, shared.ProposalStatusSuperseded, jobID)
	if err != nil {
		r.logger.Error("Failed to supersede proposals", "job_id", jobID.String(), "error", err)
		return fmt.Errorf("failed to supersede proposals for job %s: %w", jobID.String(), err)
	}

	return nil
}

func (r *ProposalRepository) scanProposal(row pgx.Row) (*proposal.Proposal, error) {
	var p proposal.Proposal
	var vendor, lines []byte
	err := row.Scan(
		&p.ID,
		&p.JobID,
		&vendor,
		&p.Currency,
		&lines,
		&p.Confidence,
		&p.RiskLevel,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vendor, &p.Vendor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal vendor: %w", err)
	}
	if err := json.Unmarshal(lines, &p.Lines); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal lines: %w", err)
	}
	return &p, nil
}
