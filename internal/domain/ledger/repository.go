package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages posted ledger entries. Create participates in the posting
// transaction so the state change and the entry commit or roll back together.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByProposalID(ctx context.Context, proposalID uuid.UUID) (*Entry, error)
	ListByJobID(ctx context.Context, jobID uuid.UUID) ([]*Entry, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	ProposalID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found for proposal: " + e.ProposalID.String()
}

func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	return t.ProposalID == uuid.Nil || e.ProposalID == t.ProposalID
}

// ErrDuplicateEntry indicates the proposal already has a posted entry. Callers
// on the posting path treat this as proof the work is already done.
type ErrDuplicateEntry struct {
	ProposalID uuid.UUID
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate ledger entry for proposal: " + e.ProposalID.String()
}

func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	return t.ProposalID == uuid.Nil || e.ProposalID == t.ProposalID
}
