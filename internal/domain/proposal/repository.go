package proposal

import (
	"context"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages proposal persistence
type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error)
	// GetCurrentByJobID returns the one non-superseded proposal for the job
	GetCurrentByJobID(ctx context.Context, jobID uuid.UUID) (*Proposal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status shared.ProposalStatus) error
	// SupersedeByJobID retires any current proposal for the job, making room for a new one
	SupersedeByJobID(ctx context.Context, jobID uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// ErrProposalNotFound indicates a missing proposal
type ErrProposalNotFound struct {
	ID uuid.UUID
}

func (e ErrProposalNotFound) Error() string {
	return "proposal not found: " + e.ID.String()
}

func (e ErrProposalNotFound) Is(target error) bool {
	t, ok := target.(ErrProposalNotFound)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || e.ID == t.ID
}
