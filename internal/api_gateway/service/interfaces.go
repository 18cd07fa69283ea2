package service

import (
	"context"

	"github.com/doculedger-governance/internal/domain/approval"
	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/ledger"
	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
)

// UploadRequest registers one stored document for processing
type UploadRequest struct {
	TenantID       string
	Bucket         string
	ObjectKey      string
	Checksum       string
	IdempotencyKey string
}

// UploadOutcome reports what the upload amounted to. Duplicate means the
// document's bytes were seen before and the original job is returned; Replayed
// means this exact request already ran and its snapshot was served back.
type UploadOutcome struct {
	Job       *job.Job `json:"job"`
	Duplicate bool     `json:"duplicate"`
	Replayed  bool     `json:"replayed"`
}

// DocumentService registers uploads and accepts extraction output
type DocumentService interface {
	// Upload registers a stored document, creating its job exactly once per
	// idempotency window and folding byte-identical re-uploads into the
	// original job
	Upload(ctx context.Context, req *UploadRequest) (*UploadOutcome, error)

	// SubmitJournal forwards a proposed journal to the pipeline topic
	SubmitJournal(ctx context.Context, msg *shared.ProposedJournal) error
}

// JobService serves job queries and their audit trails
type JobService interface {
	// GetJob retrieves a job by ID. Returns nil if not found
	GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// ListJobs retrieves a paginated list of a tenant's jobs with total count
	ListJobs(ctx context.Context, tenantID string, page, perPage int) ([]*job.Job, int64, error)

	// GetAuditTrail retrieves the audit history of one entity
	GetAuditTrail(ctx context.Context, entityType, entityID string, page, perPage int) ([]*audit.Event, error)

	// GetEvents retrieves the outbox events recorded for one aggregate
	GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]*outbox.Event, error)
}

// ApprovalService serves the review inbox and applies human decisions
type ApprovalService interface {
	// ListPending retrieves the approval inbox, oldest first, with a total count
	ListPending(ctx context.Context, page, perPage int) ([]*approval.Approval, int64, error)

	// Decide applies a human decision exactly once and advances the job.
	// Returns ErrAlreadyDecided if the approval already left pending.
	Decide(ctx context.Context, id uuid.UUID, approve bool, approver, comment, traceID string) (*approval.Approval, error)
}

// LedgerService serves posted entries and books reversals
type LedgerService interface {
	// GetCurrentProposal retrieves the job's current proposal. Returns nil if none
	GetCurrentProposal(ctx context.Context, jobID uuid.UUID) (*proposal.Proposal, error)

	// GetEntriesByJob retrieves all entries posted for a job, reversals included
	GetEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*ledger.Entry, error)

	// Reverse books a correcting entry that mirrors the original with sides
	// swapped. The original is never mutated.
	Reverse(ctx context.Context, entryID uuid.UUID, actor, traceID string) (*ledger.Entry, error)
}
