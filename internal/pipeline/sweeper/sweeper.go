package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/config"
	"github.com/doculedger-governance/internal/domain/idempotency"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/service"
)

// ErrProcessingTimedOut is recorded as the failure cause for swept jobs
var ErrProcessingTimedOut = errors.New("processing attempt timed out")

// Sweeper is the housekeeping loop of the pipeline worker. It repairs the two
// kinds of stranded jobs a crash can leave behind: PROCESSING jobs whose worker
// died mid-attempt, and approved jobs whose posting transaction never ran. It
// also evicts expired idempotency keys.
type Sweeper struct {
	jobs            job.Repository
	keys            idempotency.Store
	poster          service.LedgerPoster
	failureRecorder service.FailureRecorder
	logger          *slog.Logger

	interval          time.Duration
	processingTimeout time.Duration
	batchSize         int
}

func NewSweeper(
	cfg *config.PipelineConfig,
	jobs job.Repository,
	keys idempotency.Store,
	poster service.LedgerPoster,
	failureRecorder service.FailureRecorder,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		jobs:              jobs,
		keys:              keys,
		poster:            poster,
		failureRecorder:   failureRecorder,
		logger:            logger,
		interval:          cfg.SweepInterval,
		processingTimeout: cfg.ProcessingTimeout,
		batchSize:         cfg.SweepBatchSize,
	}
}

// Start begins sweeping until context is canceled
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting pipeline sweeper",
		"interval", s.interval.String(),
		"processing_timeout", s.processingTimeout.String(),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pipeline sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.sweepStuckProcessing(ctx); err != nil {
		s.logger.Error("Failed to sweep stuck processing jobs", "error", err)
	}
	if err := s.sweepUnposted(ctx, shared.JobStateAutoApproved); err != nil {
		s.logger.Error("Failed to sweep unposted auto-approved jobs", "error", err)
	}
	if err := s.sweepUnposted(ctx, shared.JobStateApproved); err != nil {
		s.logger.Error("Failed to sweep unposted approved jobs", "error", err)
	}
	if err := s.evictExpiredKeys(ctx); err != nil {
		s.logger.Error("Failed to evict expired idempotency keys", "error", err)
	}
}

// sweepStuckProcessing hands timed-out PROCESSING jobs back for another attempt
// or fails them once the budget is spent
func (s *Sweeper) sweepStuckProcessing(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.processingTimeout)
	stuck, err := s.jobs.ListInStateSince(ctx, shared.JobStateProcessing, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list stuck processing jobs: %w", err)
	}

	for _, j := range stuck {
		s.logger.Warn("Sweeping stuck processing job",
			"job_id", j.ID.String(),
			"updated_at", j.UpdatedAt,
			"attempts", j.Attempts,
		)
		if _, err := s.failureRecorder.RecordFailure(ctx, j.ID, ErrProcessingTimedOut, ""); err != nil {
			s.logger.Error("Failed to sweep stuck job", "job_id", j.ID.String(), "error", err)
		}
	}
	return nil
}

// sweepUnposted re-runs the posting for jobs stranded in an approved state.
// Posting is idempotent, so racing a live worker is harmless.
func (s *Sweeper) sweepUnposted(ctx context.Context, state shared.JobState) error {
	// Zero cutoff bias: anything sitting in an approved state past one sweep
	// interval has been stranded by a crash or is awaiting its first sweep.
	cutoff := time.Now().UTC().Add(-s.interval)
	stranded, err := s.jobs.ListInStateSince(ctx, state, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list unposted %s jobs: %w", state, err)
	}

	for _, j := range stranded {
		s.logger.Info("Posting stranded approved job", "job_id", j.ID.String(), "state", string(state))
		if _, err := s.poster.Post(ctx, j.ID, "sweeper", ""); err != nil {
			s.logger.Error("Failed to post stranded job", "job_id", j.ID.String(), "error", err)
		}
	}
	return nil
}

func (s *Sweeper) evictExpiredKeys(ctx context.Context) error {
	evicted, err := s.keys.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if evicted > 0 {
		s.logger.Info("Evicted expired idempotency keys", "count", evicted)
	}
	return nil
}
