package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/approval"
	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/policy"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/jackc/pgx/v5"
)

// PolicyActor is recorded as the approver on auto-approved proposals
const PolicyActor = "policy-engine"

// DecisionRouter turns a policy verdict into the job's next state. Every route
// records the full rule-by-rule result in the audit log, so any decision can
// be reconstructed without re-running the engine.
type DecisionRouter struct {
	machine   *statemachine.Machine
	proposals proposal.Repository
	approvals approval.Repository
	publisher *OutboxPublisher
	audit     audit.Recorder
	logger    *slog.Logger
}

func NewDecisionRouter(logger *slog.Logger, machine *statemachine.Machine, proposals proposal.Repository, approvals approval.Repository, publisher *OutboxPublisher, recorder audit.Recorder) *DecisionRouter {
	return &DecisionRouter{
		machine:   machine,
		proposals: proposals,
		approvals: approvals,
		publisher: publisher,
		audit:     recorder,
		logger:    logger,
	}
}

// Route advances the job according to the verdict and attaches the matching
// approval, proposal, and outbox writes in the same transaction
func (r *DecisionRouter) Route(ctx context.Context, p *proposal.Proposal, verdict policy.Result, traceID string) (*job.Job, error) {
	resultPayload, err := json.Marshal(verdict)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy result: %w", err)
	}

	recordVerdict := func(ctx context.Context, tx pgx.Tx) error {
		return r.audit.WithTx(tx).Record(ctx, &audit.Event{
			Action:     "policy.evaluated",
			EntityType: "proposal",
			EntityID:   p.ID.String(),
			Actor:      PolicyActor,
			TraceID:    traceID,
			Payload:    resultPayload,
		})
	}

	switch verdict.Overall {
	case policy.OutcomeReject:
		return r.machine.Advance(ctx, p.JobID, shared.JobStateRejected, statemachine.AdvanceOptions{
			Actor:   PolicyActor,
			TraceID: traceID,
			SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
				if err := r.proposals.WithTx(tx).UpdateStatus(ctx, p.ID, shared.ProposalStatusRejected); err != nil {
					return err
				}
				if err := r.publisher.Publish(ctx, tx, shared.EventProposalRejected, shared.AggregateProposal, p.ID.String(), shared.ProposalDecisionPayload{
					ProposalID: p.ID.String(),
					JobID:      p.JobID.String(),
				}); err != nil {
					return err
				}
				if err := r.publisher.Publish(ctx, tx, shared.EventJobCompleted, shared.AggregateJob, p.JobID.String(), shared.JobCompletedPayload{
					JobID:   p.JobID.String(),
					Outcome: "rejected",
				}); err != nil {
					return err
				}
				return recordVerdict(ctx, tx)
			},
		})

	case policy.OutcomeReview:
		return r.machine.Advance(ctx, p.JobID, shared.JobStateNeedsApproval, statemachine.AdvanceOptions{
			Actor:   PolicyActor,
			TraceID: traceID,
			SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
				if err := r.approvals.WithTx(tx).Create(ctx, approval.NewPending(p.ID, p.JobID)); err != nil {
					return err
				}
				return recordVerdict(ctx, tx)
			},
		})

	case policy.OutcomeApprove:
		return r.machine.Advance(ctx, p.JobID, shared.JobStateAutoApproved, statemachine.AdvanceOptions{
			Actor:   PolicyActor,
			TraceID: traceID,
			SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
				if err := r.approvals.WithTx(tx).Create(ctx, approval.NewAutoApproved(p.ID, p.JobID, PolicyActor)); err != nil {
					return err
				}
				if err := r.proposals.WithTx(tx).UpdateStatus(ctx, p.ID, shared.ProposalStatusApproved); err != nil {
					return err
				}
				if err := r.publisher.Publish(ctx, tx, shared.EventProposalApproved, shared.AggregateProposal, p.ID.String(), shared.ProposalDecisionPayload{
					ProposalID: p.ID.String(),
					JobID:      p.JobID.String(),
				}); err != nil {
					return err
				}
				return recordVerdict(ctx, tx)
			},
		})
	}

	return nil, fmt.Errorf("unknown policy outcome %q", verdict.Overall)
}
