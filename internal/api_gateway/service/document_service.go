package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/idempotency"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/messaging/producers"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// DocumentServiceImpl implements the DocumentService interface
type DocumentServiceImpl struct {
	pgDB              *persistence.PostgresDB
	jobs              job.Repository
	outboxRepo        outbox.Repository
	audit             audit.Recorder
	executor          *idempotency.Executor
	producer          producers.MessagePublisher
	jobMaxAttempts    int
	outboxMaxAttempts int
	logger            *slog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	logger *slog.Logger,
	pgDB *persistence.PostgresDB,
	jobs job.Repository,
	outboxRepo outbox.Repository,
	recorder audit.Recorder,
	executor *idempotency.Executor,
	producer producers.MessagePublisher,
	jobMaxAttempts, outboxMaxAttempts int,
) DocumentService {
	return &DocumentServiceImpl{
		pgDB:              pgDB,
		jobs:              jobs,
		outboxRepo:        outboxRepo,
		audit:             recorder,
		executor:          executor,
		producer:          producer,
		jobMaxAttempts:    jobMaxAttempts,
		outboxMaxAttempts: outboxMaxAttempts,
		logger:            logger,
	}
}

// Upload registers a stored document. Two layers of protection stack here:
// the idempotency key absorbs network-level retries of the same request, and
// the (tenant, checksum) constraint folds byte-identical re-uploads under a
// different key into the original job.
func (s *DocumentServiceImpl) Upload(ctx context.Context, req *UploadRequest) (*UploadOutcome, error) {
	key := req.IdempotencyKey
	if key == "" {
		// Content-derived fallback key: same bytes, same key.
		key = fmt.Sprintf("upload:%s:%s", req.TenantID, req.Checksum)
	}

	result, err := s.executor.Execute(ctx, key, "document.upload", func(ctx context.Context) (interface{}, error) {
		return s.registerDocument(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	var outcome UploadOutcome
	if err := json.Unmarshal(result.Value, &outcome); err != nil {
		return nil, fmt.Errorf("failed to decode upload outcome snapshot: %w", err)
	}
	outcome.Replayed = result.Replayed
	return &outcome, nil
}

func (s *DocumentServiceImpl) registerDocument(ctx context.Context, req *UploadRequest) (*UploadOutcome, error) {
	// Content dedup: a byte-identical document maps back to its first job.
	existing, err := s.jobs.GetByChecksum(ctx, req.TenantID, req.Checksum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.recordDuplicate(ctx, existing)
	}

	j := job.NewJob(req.TenantID, req.Bucket, req.ObjectKey, req.Checksum, s.jobMaxAttempts)

	err = s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.jobs.WithTx(tx).Create(ctx, j); err != nil {
			return err
		}

		e, err := outbox.NewEvent(shared.EventJobCreated, shared.AggregateJob, j.ID.String(), shared.JobCreatedPayload{
			JobID:    j.ID.String(),
			TenantID: j.TenantID,
		}, s.outboxMaxAttempts)
		if err != nil {
			return err
		}
		if err := s.outboxRepo.WithTx(tx).Create(ctx, e); err != nil {
			return err
		}

		payload, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return s.audit.WithTx(tx).Record(ctx, &audit.Event{
			Action:     "job.created",
			EntityType: "job",
			EntityID:   j.ID.String(),
			Actor:      "api-gateway",
			NewState:   string(j.CurrentState),
			Payload:    payload,
		})
	})
	if err != nil {
		// Lost the creation race against a concurrent upload of the same bytes.
		if errors.Is(err, job.ErrDuplicateDocument{}) {
			winner, getErr := s.jobs.GetByChecksum(ctx, req.TenantID, req.Checksum)
			if getErr != nil {
				return nil, getErr
			}
			if winner != nil {
				return s.recordDuplicate(ctx, winner)
			}
		}
		return nil, err
	}

	s.logger.Info("Document registered",
		"job_id", j.ID.String(),
		"tenant_id", j.TenantID,
		"object_key", j.ObjectKey,
	)
	return &UploadOutcome{Job: j}, nil
}

func (s *DocumentServiceImpl) recordDuplicate(ctx context.Context, original *job.Job) (*UploadOutcome, error) {
	if err := s.jobs.IncrementDuplicateCount(ctx, original.ID); err != nil {
		return nil, err
	}
	original.DuplicateCount++

	s.logger.Info("Duplicate document mapped to existing job",
		"job_id", original.ID.String(),
		"tenant_id", original.TenantID,
		"duplicate_count", original.DuplicateCount,
	)
	return &UploadOutcome{Job: original, Duplicate: true}, nil
}

// SubmitJournal forwards extraction output onto the pipeline topic, keyed by
// job ID so journals for one job stay ordered
func (s *DocumentServiceImpl) SubmitJournal(ctx context.Context, msg *shared.ProposedJournal) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	if err := s.producer.Publish(ctx, msg.JobID.String(), msg); err != nil {
		s.logger.Error("Failed to publish proposed journal",
			"job_id", msg.JobID.String(),
			"error", err,
		)
		return err
	}

	s.logger.Info("Proposed journal published",
		"job_id", msg.JobID.String(),
		"vendor", msg.Vendor.Name,
		"entries", len(msg.Entries),
	)
	return nil
}
