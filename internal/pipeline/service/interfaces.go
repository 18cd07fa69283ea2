package service

import (
	"context"

	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/policy"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
)

// ProcessingService defines the interface for processing scanned-document journals.
type ProcessingService interface {
	ProcessJournal(ctx context.Context, msg *shared.ProposedJournal) error
}

// JournalIntake stores scanner output as the job's current proposal
type JournalIntake interface {
	// Begin claims the job for a processing attempt
	Begin(ctx context.Context, jobID uuid.UUID, traceID string) (*job.Job, error)
	Intake(ctx context.Context, msg *shared.ProposedJournal) (*proposal.Proposal, *job.Job, error)
	// CurrentProposal returns the committed proposal of a job whose intake
	// already ran, so a redelivered message can resume at evaluation
	CurrentProposal(ctx context.Context, jobID uuid.UUID) (*proposal.Proposal, error)
}

// PolicyEvaluator evaluates a proposal against the configured rule set
type PolicyEvaluator interface {
	Evaluate(p *proposal.Proposal) policy.Result
}

// DecisionRouter advances the job according to the policy verdict
type DecisionRouter interface {
	Route(ctx context.Context, p *proposal.Proposal, verdict policy.Result, traceID string) (*job.Job, error)
}

// LedgerPoster posts the approved proposal's ledger entry
type LedgerPoster interface {
	Post(ctx context.Context, jobID uuid.UUID, postedBy, traceID string) (*job.Job, error)
}

// FailureRecorder routes jobs after failed processing attempts
type FailureRecorder interface {
	RecordFailure(ctx context.Context, jobID uuid.UUID, cause error, traceID string) (*job.Job, error)
}
