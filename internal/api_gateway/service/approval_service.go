package service

import (
	"context"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/approval"
	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApprovalServiceImpl implements the ApprovalService interface
type ApprovalServiceImpl struct {
	machine           *statemachine.Machine
	approvals         approval.Repository
	proposals         proposal.Repository
	outboxRepo        outbox.Repository
	audit             audit.Recorder
	outboxMaxAttempts int
	logger            *slog.Logger
}

// NewApprovalService creates a new approval service
func NewApprovalService(
	logger *slog.Logger,
	machine *statemachine.Machine,
	approvals approval.Repository,
	proposals proposal.Repository,
	outboxRepo outbox.Repository,
	recorder audit.Recorder,
	outboxMaxAttempts int,
) ApprovalService {
	return &ApprovalServiceImpl{
		machine:           machine,
		approvals:         approvals,
		proposals:         proposals,
		outboxRepo:        outboxRepo,
		audit:             recorder,
		outboxMaxAttempts: outboxMaxAttempts,
		logger:            logger,
	}
}

// ListPending retrieves the approval inbox, oldest first, with a total count
func (s *ApprovalServiceImpl) ListPending(ctx context.Context, page, perPage int) ([]*approval.Approval, int64, error) {
	offset := (page - 1) * perPage

	approvals, err := s.approvals.ListPending(ctx, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.approvals.CountPending(ctx)
	if err != nil {
		return nil, 0, err
	}

	return approvals, total, nil
}

// Decide applies a human decision. The approval flip, the proposal status, the
// job transition, the outbox events, and the audit trail commit together. The
// conditional update inside Decide makes a second decision land on
// ErrAlreadyDecided instead of flipping anything twice.
func (s *ApprovalServiceImpl) Decide(ctx context.Context, id uuid.UUID, approve bool, approver, comment, traceID string) (*approval.Approval, error) {
	a, err := s.approvals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target := shared.JobStateApproved
	approvalStatus := shared.ApprovalStatusApproved
	if !approve {
		target = shared.JobStateRejected
		approvalStatus = shared.ApprovalStatusRejected
	}

	var decided *approval.Approval
	_, err = s.machine.Advance(ctx, a.JobID, target, statemachine.AdvanceOptions{
		Actor:   approver,
		TraceID: traceID,
		SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
			var err error
			decided, err = s.approvals.WithTx(tx).Decide(ctx, id, approvalStatus, approver, comment)
			if err != nil {
				return err
			}

			proposalStatus := shared.ProposalStatusApproved
			eventType := shared.EventProposalApproved
			if !approve {
				proposalStatus = shared.ProposalStatusRejected
				eventType = shared.EventProposalRejected
			}
			if err := s.proposals.WithTx(tx).UpdateStatus(ctx, a.ProposalID, proposalStatus); err != nil {
				return err
			}

			if err := s.publish(ctx, tx, eventType, shared.AggregateProposal, a.ProposalID.String(), shared.ProposalDecisionPayload{
				ProposalID: a.ProposalID.String(),
				JobID:      a.JobID.String(),
			}); err != nil {
				return err
			}
			if !approve {
				if err := s.publish(ctx, tx, shared.EventJobCompleted, shared.AggregateJob, a.JobID.String(), shared.JobCompletedPayload{
					JobID:   a.JobID.String(),
					Outcome: "rejected",
				}); err != nil {
					return err
				}
			}

			return s.audit.WithTx(tx).Record(ctx, &audit.Event{
				Action:     "approval.decided",
				EntityType: "approval",
				EntityID:   id.String(),
				Actor:      approver,
				NewState:   string(approvalStatus),
				TraceID:    traceID,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	// The advance was a no-op: the job already sits in the target state, so
	// this decision must have been applied before.
	if decided == nil {
		current, err := s.approvals.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == shared.ApprovalStatusPending {
			return nil, approval.ErrAlreadyDecided{ID: id}
		}
		return current, nil
	}

	s.logger.Info("Approval decided",
		"approval_id", id.String(),
		"job_id", a.JobID.String(),
		"approved", approve,
		"approver", approver,
	)
	return decided, nil
}

func (s *ApprovalServiceImpl) publish(ctx context.Context, tx pgx.Tx, eventType, aggregateType, aggregateID string, payload interface{}) error {
	e, err := outbox.NewEvent(eventType, aggregateType, aggregateID, payload, s.outboxMaxAttempts)
	if err != nil {
		return err
	}
	return s.outboxRepo.WithTx(tx).Create(ctx, e)
}
