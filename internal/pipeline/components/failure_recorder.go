package components

import (
	"context"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FailureRecorder decides what a processing failure means for the job: hand it
// back for another attempt, or burn it with a job.failed event. Terminal
// errors skip the retry budget entirely.
type FailureRecorder struct {
	machine   *statemachine.Machine
	jobs      job.Repository
	publisher *OutboxPublisher
	logger    *slog.Logger
}

func NewFailureRecorder(logger *slog.Logger, machine *statemachine.Machine, jobs job.Repository, publisher *OutboxPublisher) *FailureRecorder {
	return &FailureRecorder{
		machine:   machine,
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
	}
}

// RecordFailure routes the job after a failed processing attempt. Retryable
// failures with budget left return the job to UPLOADED; everything else goes
// to FAILED with a job.failed event in the same transaction.
func (f *FailureRecorder) RecordFailure(ctx context.Context, jobID uuid.UUID, cause error, traceID string) (*job.Job, error) {
	j, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	terminal := shared.Classify(cause) == shared.ClassTerminal
	if !terminal && !j.RetriesExhausted() {
		f.logger.Warn("Processing attempt failed, returning job for retry",
			"job_id", jobID.String(),
			"attempts", j.Attempts+1,
			"max_attempts", j.MaxAttempts,
			"error", cause,
		)
		return f.machine.Advance(ctx, jobID, shared.JobStateUploaded, statemachine.AdvanceOptions{
			TraceID:           traceID,
			LastError:         cause.Error(),
			IncrementAttempts: true,
		})
	}

	f.logger.Error("Job failed",
		"job_id", jobID.String(),
		"terminal", terminal,
		"attempts", j.Attempts,
		"error", cause,
	)
	return f.machine.Advance(ctx, jobID, shared.JobStateFailed, statemachine.AdvanceOptions{
		TraceID:   traceID,
		LastError: cause.Error(),
		SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
			return f.publisher.Publish(ctx, tx, shared.EventJobFailed, shared.AggregateJob, jobID.String(), shared.JobFailedPayload{
				JobID: jobID.String(),
				Error: cause.Error(),
			})
		},
	})
}
