package approval

import (
	"context"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages approval persistence. Decide is the only mutation and
// flips a row from pending to a terminal status exactly once.
type Repository interface {
	Create(ctx context.Context, a *Approval) error
	GetByID(ctx context.Context, id uuid.UUID) (*Approval, error)
	GetPendingByJobID(ctx context.Context, jobID uuid.UUID) (*Approval, error)
	ListPending(ctx context.Context, limit, offset int) ([]*Approval, error)
	CountPending(ctx context.Context) (int64, error)
	// Decide moves the approval out of pending via a conditional update.
	// Returns ErrAlreadyDecided if the row is no longer pending.
	Decide(ctx context.Context, id uuid.UUID, status shared.ApprovalStatus, approver, comment string) (*Approval, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrApprovalNotFound indicates a missing approval
type ErrApprovalNotFound struct {
	ID uuid.UUID
}

func (e ErrApprovalNotFound) Error() string {
	return "approval not found: " + e.ID.String()
}

func (e ErrApprovalNotFound) Is(target error) bool {
	t, ok := target.(ErrApprovalNotFound)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || e.ID == t.ID
}

// ErrAlreadyDecided indicates the approval already left the pending state
type ErrAlreadyDecided struct {
	ID uuid.UUID
}

func (e ErrAlreadyDecided) Error() string {
	return "approval already decided: " + e.ID.String()
}

func (e ErrAlreadyDecided) Is(target error) bool {
	t, ok := target.(ErrAlreadyDecided)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || e.ID == t.ID
}

// ErrorClass marks double decisions as terminal: replays must not flip budgets
func (e ErrAlreadyDecided) ErrorClass() shared.Class {
	return shared.ClassTerminal
}
