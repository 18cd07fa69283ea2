package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/google/uuid"
)

// JobServiceImpl implements the JobService interface
type JobServiceImpl struct {
	jobs       job.Repository
	audit      audit.Recorder
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

// NewJobService creates a new job query service
func NewJobService(logger *slog.Logger, jobs job.Repository, recorder audit.Recorder, outboxRepo outbox.Repository) JobService {
	return &JobServiceImpl{
		jobs:       jobs,
		audit:      recorder,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// GetJob retrieves a job by its ID. Returns nil if not found
func (s *JobServiceImpl) GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound{}) {
			return nil, nil
		}
		s.logger.Error("Failed to get job", "job_id", id.String(), "error", err)
		return nil, err
	}
	return j, nil
}

// ListJobs retrieves a paginated list of a tenant's jobs with total count
func (s *JobServiceImpl) ListJobs(ctx context.Context, tenantID string, page, perPage int) ([]*job.Job, int64, error) {
	offset := (page - 1) * perPage

	jobs, err := s.jobs.ListByTenant(ctx, tenantID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.jobs.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// GetAuditTrail retrieves the audit history of one entity, oldest first
func (s *JobServiceImpl) GetAuditTrail(ctx context.Context, entityType, entityID string, page, perPage int) ([]*audit.Event, error) {
	offset := (page - 1) * perPage
	return s.audit.ListByEntity(ctx, entityType, entityID, perPage, offset)
}

// GetEvents retrieves the outbox events recorded for one aggregate
func (s *JobServiceImpl) GetEvents(ctx context.Context, aggregateType, aggregateID string) ([]*outbox.Event, error) {
	return s.outboxRepo.GetByAggregate(ctx, aggregateType, aggregateID)
}
