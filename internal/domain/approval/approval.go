package approval

import (
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
)

// Approval is one approval decision attempt. JobID is always non-null:
// an approval orphaned from its job is a correctness bug, not a display bug.
// A row is created both on the manual-review path and on auto-approval, so
// the audit trail reads the same either way.
type Approval struct {
	ID         uuid.UUID             `json:"id"`
	ProposalID uuid.UUID             `json:"proposal_id"`
	JobID      uuid.UUID             `json:"job_id"`
	Status     shared.ApprovalStatus `json:"status"`
	Approver   string                `json:"approver,omitempty"`
	Comment    string                `json:"comment,omitempty"`
	DecidedAt  *time.Time            `json:"decided_at,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// NewPending creates an approval awaiting a human decision
func NewPending(proposalID, jobID uuid.UUID) *Approval {
	return &Approval{
		ID:         uuid.New(),
		ProposalID: proposalID,
		JobID:      jobID,
		Status:     shared.ApprovalStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewAutoApproved creates an already-decided approval recorded for audit symmetry
func NewAutoApproved(proposalID, jobID uuid.UUID, approver string) *Approval {
	now := time.Now().UTC()
	return &Approval{
		ID:         uuid.New(),
		ProposalID: proposalID,
		JobID:      jobID,
		Status:     shared.ApprovalStatusApproved,
		Approver:   approver,
		DecidedAt:  &now,
		CreatedAt:  now,
	}
}
