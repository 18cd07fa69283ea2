package job

import (
	"context"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages job persistence. State mutation goes through the state
// machine, which locks the row for the duration of its transaction.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	GetByChecksum(ctx context.Context, tenantID, checksum string) (*Job, error)
	// LockForUpdate loads the job under a row lock; call within a transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Job, error)
	UpdateState(ctx context.Context, j *Job) error
	IncrementDuplicateCount(ctx context.Context, id uuid.UUID) error
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*Job, error)
	CountByTenant(ctx context.Context, tenantID string) (int64, error)
	// ListInStateSince returns jobs sitting in state with no update since the cutoff,
	// used by the housekeeping sweep
	ListInStateSince(ctx context.Context, state shared.JobState, cutoff time.Time, limit int) ([]*Job, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrJobNotFound indicates a missing job
type ErrJobNotFound struct {
	ID uuid.UUID
}

func (e ErrJobNotFound) Error() string {
	return "job not found: " + e.ID.String()
}

// Is matches any ErrJobNotFound when the target carries a nil ID
func (e ErrJobNotFound) Is(target error) bool {
	t, ok := target.(ErrJobNotFound)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || e.ID == t.ID
}

// ErrDuplicateDocument indicates a (tenant_id, file_checksum) uniqueness violation
type ErrDuplicateDocument struct {
	TenantID string
	Checksum string
}

func (e ErrDuplicateDocument) Error() string {
	return "duplicate document for tenant " + e.TenantID + ": " + e.Checksum
}

func (e ErrDuplicateDocument) Is(target error) bool {
	_, ok := target.(ErrDuplicateDocument)
	return ok
}

// ErrInvalidTransition indicates a request to move a job along an illegal edge
// of the state graph. It is structural and never retried.
type ErrInvalidTransition struct {
	From shared.JobState
	To   shared.JobState
}

func (e ErrInvalidTransition) Error() string {
	return "invalid transition: " + string(e.From) + " -> " + string(e.To)
}

func (e ErrInvalidTransition) Is(target error) bool {
	t, ok := target.(ErrInvalidTransition)
	if !ok {
		return false
	}
	if t.From == "" && t.To == "" {
		return true
	}
	return e.From == t.From && e.To == t.To
}

// ErrorClass marks invalid transitions as terminal for retry classification
func (e ErrInvalidTransition) ErrorClass() shared.Class {
	return shared.ClassTerminal
}
