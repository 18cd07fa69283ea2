package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/messaging/producers"
	"github.com/google/uuid"
)

// PolicyActor mirrors the audit actor used for engine decisions
const PolicyActor = "policy-engine"

type ProcessingServiceImpl struct {
	jobs            job.Repository
	intake          JournalIntake
	evaluator       PolicyEvaluator
	router          DecisionRouter
	poster          LedgerPoster
	failureRecorder FailureRecorder
	dlqProducer     producers.DeadLetterPublisher
	logger          *slog.Logger
}

func NewProcessingService(
	jobs job.Repository,
	intake JournalIntake,
	evaluator PolicyEvaluator,
	router DecisionRouter,
	poster LedgerPoster,
	failureRecorder FailureRecorder,
	dlqProducer producers.DeadLetterPublisher,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		jobs:            jobs,
		intake:          intake,
		evaluator:       evaluator,
		router:          router,
		poster:          poster,
		failureRecorder: failureRecorder,
		dlqProducer:     dlqProducer,
		logger:          logger,
	}
}

// ProcessJournal handles one scanned-document journal end to end: record the
// proposal, evaluate policy, route the decision, and post when auto-approved.
// A nil return acknowledges the message; a non-nil return leaves the offset
// uncommitted so the broker redelivers.
func (s *ProcessingServiceImpl) ProcessJournal(ctx context.Context, msg *shared.ProposedJournal) error {
	logger := s.logger
	if msg.CorrelationID != "" {
		logger = s.logger.With("correlation_id", msg.CorrelationID)
	}

	logger.Info("Processing proposed journal", "job_id", msg.JobID.String())

	// 1. Validate the message. Malformed journals can never succeed, so they
	// go straight to the DLQ and the job is failed if it exists.
	if err := msg.Validate(); err != nil {
		logger.Error("Proposed journal validation failed", "job_id", msg.JobID.String(), "error", err)
		s.sendToDLQ(ctx, msg, "validation failed: "+err.Error())
		if msg.JobID != uuid.Nil {
			if _, recordErr := s.failureRecorder.RecordFailure(ctx, msg.JobID, err, msg.CorrelationID); recordErr != nil {
				logger.Error("Failed to record validation failure", "job_id", msg.JobID.String(), "error", recordErr)
			}
		}
		return nil // Acknowledge: redelivery cannot fix a malformed message
	}

	// 2. The job must already exist; uploads create it before publishing.
	j, err := s.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound{}) {
			logger.Error("Journal references unknown job", "job_id", msg.JobID.String())
			s.sendToDLQ(ctx, msg, "unknown job")
			return nil
		}
		return err // Let Kafka retry
	}

	// 3. Redelivered messages for jobs that already moved on are no-ops.
	if j.CurrentState.IsTerminal() || pastIntake(j.CurrentState) {
		logger.Info("Job already past intake, acknowledging redelivery",
			"job_id", msg.JobID.String(),
			"state", string(j.CurrentState),
		)
		return nil
	}

	// 4. A job sitting at PROPOSED committed its intake on an attempt that
	// died before routing. Resume at evaluation with the stored proposal
	// instead of re-claiming; PROPOSED -> PROCESSING is not a legal edge.
	if j.CurrentState == shared.JobStateProposed {
		p, err := s.intake.CurrentProposal(ctx, msg.JobID)
		if err != nil {
			return s.handleFailure(ctx, msg, err, logger)
		}
		logger.Info("Resuming job at evaluation",
			"job_id", msg.JobID.String(),
			"proposal_id", p.ID.String(),
		)
		return s.evaluateAndRoute(ctx, msg, p, logger)
	}

	// 5. Claim the job for this attempt. A crash after this step leaves a
	// PROCESSING job the sweeper can see and hand back.
	if _, err := s.intake.Begin(ctx, msg.JobID, msg.CorrelationID); err != nil {
		return s.handleFailure(ctx, msg, err, logger)
	}

	// 6. Record the proposal and move to PROPOSED.
	p, _, err := s.intake.Intake(ctx, msg)
	if err != nil {
		return s.handleFailure(ctx, msg, err, logger)
	}

	return s.evaluateAndRoute(ctx, msg, p, logger)
}

// evaluateAndRoute runs the second half of the pipeline: policy evaluation,
// decision routing, and immediate posting for auto-approved jobs.
func (s *ProcessingServiceImpl) evaluateAndRoute(ctx context.Context, msg *shared.ProposedJournal, p *proposal.Proposal, logger *slog.Logger) error {
	// Evaluate policy. Pure function; rule panics are contained per rule.
	verdict := s.evaluator.Evaluate(p)
	logger.Info("Policy evaluated",
		"job_id", msg.JobID.String(),
		"proposal_id", p.ID.String(),
		"outcome", string(verdict.Overall),
		"failed_rules", len(verdict.Failed),
	)

	// Route the verdict.
	routed, err := s.router.Route(ctx, p, verdict, msg.CorrelationID)
	if err != nil {
		return s.handleFailure(ctx, msg, err, logger)
	}

	// Auto-approved jobs post immediately. A crash between route and post
	// leaves the job in AUTO_APPROVED for the sweeper; posting is idempotent.
	if routed.CurrentState == shared.JobStateAutoApproved {
		if _, err := s.poster.Post(ctx, msg.JobID, PolicyActor, msg.CorrelationID); err != nil {
			return s.handleFailure(ctx, msg, err, logger)
		}
	}

	logger.Info("Proposed journal processed", "job_id", msg.JobID.String(), "outcome", string(verdict.Overall))
	return nil
}

// pastIntake reports whether the state is beyond the point where a journal
// message has anything left to contribute
func pastIntake(s shared.JobState) bool {
	switch s {
	case shared.JobStateAutoApproved, shared.JobStateNeedsApproval, shared.JobStateApproved:
		return true
	}
	return false
}

// handleFailure classifies the error: terminal failures are recorded and
// acknowledged, everything else is surfaced for broker redelivery
func (s *ProcessingServiceImpl) handleFailure(ctx context.Context, msg *shared.ProposedJournal, cause error, logger *slog.Logger) error {
	if shared.Classify(cause) != shared.ClassTerminal {
		logger.Warn("Retryable processing error, leaving message uncommitted",
			"job_id", msg.JobID.String(),
			"error", cause,
		)
		return cause
	}

	logger.Error("Terminal processing error", "job_id", msg.JobID.String(), "error", cause)
	if _, recordErr := s.failureRecorder.RecordFailure(ctx, msg.JobID, cause, msg.CorrelationID); recordErr != nil {
		logger.Error("Failed to record terminal failure", "job_id", msg.JobID.String(), "error", recordErr)
	}
	s.sendToDLQ(ctx, msg, cause.Error())
	return nil
}

func (s *ProcessingServiceImpl) sendToDLQ(ctx context.Context, msg *shared.ProposedJournal, reason string) {
	if s.dlqProducer == nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal journal for DLQ", "job_id", msg.JobID.String(), "error", err)
		return
	}
	if err := s.dlqProducer.PublishToDLQ(ctx, msg.JobID.String(), raw, reason); err != nil {
		s.logger.Error("Failed to publish journal to DLQ", "job_id", msg.JobID.String(), "error", err)
	}
}
