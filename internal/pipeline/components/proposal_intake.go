package components

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProposalIntake stores scanner output as the job's current proposal. Retried
// extractions produce fresh proposals; the previous one is retired in the same
// transaction so exactly one current proposal exists at any commit point.
type ProposalIntake struct {
	machine   *statemachine.Machine
	proposals proposal.Repository
	audit     audit.Recorder
	logger    *slog.Logger
}

func NewProposalIntake(logger *slog.Logger, machine *statemachine.Machine, proposals proposal.Repository, recorder audit.Recorder) *ProposalIntake {
	return &ProposalIntake{
		machine:   machine,
		proposals: proposals,
		audit:     recorder,
		logger:    logger,
	}
}

// Begin claims the job for a processing attempt by advancing it to PROCESSING.
// Already-PROCESSING jobs pass through as a no-op so redeliveries are harmless.
func (i *ProposalIntake) Begin(ctx context.Context, jobID uuid.UUID, traceID string) (*job.Job, error) {
	return i.machine.Advance(ctx, jobID, shared.JobStateProcessing, statemachine.AdvanceOptions{
		TraceID: traceID,
	})
}

// CurrentProposal loads the non-superseded proposal recorded by an earlier
// intake, for jobs that committed PROPOSED before the worker died.
func (i *ProposalIntake) CurrentProposal(ctx context.Context, jobID uuid.UUID) (*proposal.Proposal, error) {
	return i.proposals.GetCurrentByJobID(ctx, jobID)
}

// Intake advances the job to PROPOSED with the new proposal attached. The
// supersede, the insert, and the state change commit together.
func (i *ProposalIntake) Intake(ctx context.Context, msg *shared.ProposedJournal) (*proposal.Proposal, *job.Job, error) {
	p := proposal.FromProposedJournal(msg)

	checkpoint, err := json.Marshal(struct {
		ProposalID string  `json:"proposal_id"`
		Confidence float64 `json:"confidence"`
	}{
		ProposalID: p.ID.String(),
		Confidence: p.Confidence,
	})
	if err != nil {
		return nil, nil, err
	}

	j, err := i.machine.Advance(ctx, msg.JobID, shared.JobStateProposed, statemachine.AdvanceOptions{
		TraceID:    msg.CorrelationID,
		Checkpoint: checkpoint,
		SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
			proposals := i.proposals.WithTx(tx)

			if err := proposals.SupersedeByJobID(ctx, msg.JobID); err != nil {
				return err
			}
			if err := proposals.Create(ctx, p); err != nil {
				return err
			}

			payload, err := json.Marshal(p)
			if err != nil {
				return err
			}
			return i.audit.WithTx(tx).Record(ctx, &audit.Event{
				Action:     "proposal.created",
				EntityType: "proposal",
				EntityID:   p.ID.String(),
				Actor:      "pipeline",
				TraceID:    msg.CorrelationID,
				Payload:    payload,
			})
		},
	})
	if err != nil {
		return nil, nil, err
	}

	i.logger.Info("Proposal recorded",
		"job_id", msg.JobID.String(),
		"proposal_id", p.ID.String(),
		"risk_level", string(p.RiskLevel),
	)
	return p, j, nil
}
