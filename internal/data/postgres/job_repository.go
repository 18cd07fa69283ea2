// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations while maintaining
// transaction safety and proper error handling for the governance pipeline.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationCode && (constraint == "" || pgErr.ConstraintName == constraint)
}

const jobColumns = `id, tenant_id, current_state, previous_state, checkpoint_data, attempts, max_attempts,
		last_error, bucket, object_key, file_checksum, duplicate_count, created_at, updated_at`

// JobRepository implements the job.Repository interface for PostgreSQL
type JobRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewJobRepository creates a new PostgreSQL job repository
func NewJobRepository(logger *slog.Logger, db *persistence.PostgresDB) job.Repository {
	return &JobRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing atomic operations
// across multiple repository calls
func (r *JobRepository) WithTx(tx pgx.Tx) job.Repository {
	return &JobRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new job. Returns ErrDuplicateDocument if a job for the same
// (tenant_id, file_checksum) pair already exists.
func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO jobs (id, tenant_id, current_state, previous_state, checkpoint_data, attempts, max_attempts,
			last_error, bucket, object_key, file_checksum, duplicate_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.querier.Exec(ctx, query,
		j.ID,
		j.TenantID,
		j.CurrentState,
		nullableState(j.PreviousState),
		j.CheckpointData,
		j.Attempts,
		j.MaxAttempts,
		nullableString(j.LastError),
		j.Bucket,
		j.ObjectKey,
		j.FileChecksum,
		j.DuplicateCount,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "jobs_tenant_checksum_key") {
			return job.ErrDuplicateDocument{TenantID: j.TenantID, Checksum: j.FileChecksum}
		}
		r.logger.Error("Failed to create job", "job_id", j.ID.String(), "error", err)
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	j, err := r.scanJob(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrJobNotFound{ID: id}
		}
		r.logger.Error("Failed to get job", "job_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return j, nil
}

// GetByChecksum retrieves the job owning a document checksum for a tenant.
// Returns nil, nil when no such job exists.
func (r *JobRepository) GetByChecksum(ctx context.Context, tenantID, checksum string) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id = $1 AND file_checksum = $2`

	j, err := r.scanJob(r.querier.QueryRow(ctx, query, tenantID, checksum))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get job by checksum", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("failed to get job by checksum: %w", err)
	}

	return j, nil
}

// LockForUpdate obtains a row lock on the job and returns its current state.
// This must be used within a transaction; concurrent advancers on the same
// job serialize here.
func (r *JobRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`

	j, err := r.scanJob(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrJobNotFound{ID: id}
		}
		r.logger.Error("Failed to lock job for update", "job_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock job for update: %w", err)
	}

	return j, nil
}

// UpdateState persists the lifecycle fields of a job
func (r *JobRepository) UpdateState(ctx context.Context, j *job.Job) error {
	query := `
		UPDATE jobs
		SET current_state = $1, previous_state = $2, checkpoint_data = $3, attempts = $4,
			last_error = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.querier.Exec(ctx, query,
		j.CurrentState,
		nullableState(j.PreviousState),
		j.CheckpointData,
		j.Attempts,
		nullableString(j.LastError),
		time.Now().UTC(),
		j.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update job state", "job_id", j.ID.String(), "error", err)
		return fmt.Errorf("failed to update job state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return job.ErrJobNotFound{ID: j.ID}
	}

	return nil
}

// IncrementDuplicateCount records another byte-identical upload of the document
func (r *JobRepository) IncrementDuplicateCount(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET duplicate_count = duplicate_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to increment duplicate count", "job_id", id.String(), "error", err)
		return fmt.Errorf("failed to increment duplicate count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return job.ErrJobNotFound{ID: id}
	}

	return nil
}

// ListByTenant retrieves a page of jobs for a tenant, newest first
func (r *JobRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list jobs", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

// CountByTenant counts all jobs for a tenant
func (r *JobRepository) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count jobs", "tenant_id", tenantID, "error", err)
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// ListInStateSince retrieves jobs parked in a state with no update since the
// cutoff, oldest first. Used by the housekeeping sweep.
func (r *JobRepository) ListInStateSince(ctx context.Context, state shared.JobState, cutoff time.Time, limit int) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE current_state = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, state, cutoff, limit)
	if err != nil {
		r.logger.Error("Failed to list jobs in state", "state", string(state), "error", err)
		return nil, fmt.Errorf("failed to list jobs in state %s: %w", state, err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

func (r *JobRepository) scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var previousState, lastError *string
	err := row.Scan(
		&j.ID,
		&j.TenantID,
		&j.CurrentState,
		&previousState,
		&j.CheckpointData,
		&j.Attempts,
		&j.MaxAttempts,
		&lastError,
		&j.Bucket,
		&j.ObjectKey,
		&j.FileChecksum,
		&j.DuplicateCount,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if previousState != nil {
		j.PreviousState = shared.JobState(*previousState)
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}

func (r *JobRepository) collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			r.logger.Error("Failed to scan job row", "error", err)
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over job rows: %w", err)
	}
	return jobs, nil
}

func nullableState(s shared.JobState) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
