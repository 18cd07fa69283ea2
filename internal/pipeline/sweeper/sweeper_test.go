package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/doculedger-governance/internal/config"
	"github.com/doculedger-governance/internal/domain/idempotency"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepository) GetByChecksum(ctx context.Context, tenantID, checksum string) (*job.Job, error) {
	args := m.Called(ctx, tenantID, checksum)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepository) UpdateState(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockJobRepository) IncrementDuplicateCount(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*job.Job, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Job), args.Error(1)
}

func (m *MockJobRepository) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRepository) ListInStateSince(ctx context.Context, state shared.JobState, cutoff time.Time, limit int) ([]*job.Job, error) {
	args := m.Called(ctx, state, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Job), args.Error(1)
}

func (m *MockJobRepository) WithTx(tx pgx.Tx) job.Repository {
	args := m.Called(tx)
	return args.Get(0).(job.Repository)
}

type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) Insert(ctx context.Context, k *idempotency.Key) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKeyStore) Get(ctx context.Context, key string) (*idempotency.Key, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idempotency.Key), args.Error(1)
}

func (m *MockKeyStore) Finish(ctx context.Context, key string, status shared.IdempotencyStatus, snapshot []byte) error {
	args := m.Called(ctx, key, status, snapshot)
	return args.Error(0)
}

func (m *MockKeyStore) TakeOverExpired(ctx context.Context, key string, newExpiry time.Time) (bool, error) {
	args := m.Called(ctx, key, newExpiry)
	return args.Bool(0), args.Error(1)
}

func (m *MockKeyStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type MockLedgerPoster struct {
	mock.Mock
}

func (m *MockLedgerPoster) Post(ctx context.Context, jobID uuid.UUID, postedBy, traceID string) (*job.Job, error) {
	args := m.Called(ctx, jobID, postedBy, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, jobID uuid.UUID, cause error, traceID string) (*job.Job, error) {
	args := m.Called(ctx, jobID, cause, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func newTestSweeper(jobs *MockJobRepository, keys *MockKeyStore, poster *MockLedgerPoster, recorder *MockFailureRecorder) *Sweeper {
	return NewSweeper(&config.PipelineConfig{
		JobMaxAttempts:    3,
		SweepInterval:     15 * time.Second,
		ProcessingTimeout: 30 * time.Minute,
		SweepBatchSize:    50,
	}, jobs, keys, poster, recorder, slog.Default())
}

func stuckJob(state shared.JobState) *job.Job {
	return &job.Job{
		ID:           uuid.New(),
		TenantID:     "tenant-1",
		CurrentState: state,
		Attempts:     1,
		MaxAttempts:  3,
		UpdatedAt:    time.Now().UTC().Add(-time.Hour),
	}
}

func TestSweep_StuckProcessingJobsAreFailedOver(t *testing.T) {
	jobs := new(MockJobRepository)
	keys := new(MockKeyStore)
	poster := new(MockLedgerPoster)
	recorder := new(MockFailureRecorder)
	s := newTestSweeper(jobs, keys, poster, recorder)

	stuck := stuckJob(shared.JobStateProcessing)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateProcessing, mock.Anything, 50).
		Return([]*job.Job{stuck}, nil)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateAutoApproved, mock.Anything, 50).
		Return([]*job.Job{}, nil)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateApproved, mock.Anything, 50).
		Return([]*job.Job{}, nil)
	recorder.On("RecordFailure", mock.Anything, stuck.ID, ErrProcessingTimedOut, "").
		Return(stuckJob(shared.JobStateUploaded), nil)
	keys.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(0), nil)

	s.sweep(context.Background())

	jobs.AssertExpectations(t)
	recorder.AssertExpectations(t)
	poster.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_StrandedApprovedJobsArePosted(t *testing.T) {
	jobs := new(MockJobRepository)
	keys := new(MockKeyStore)
	poster := new(MockLedgerPoster)
	recorder := new(MockFailureRecorder)
	s := newTestSweeper(jobs, keys, poster, recorder)

	autoApproved := stuckJob(shared.JobStateAutoApproved)
	humanApproved := stuckJob(shared.JobStateApproved)

	jobs.On("ListInStateSince", mock.Anything, shared.JobStateProcessing, mock.Anything, 50).
		Return([]*job.Job{}, nil)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateAutoApproved, mock.Anything, 50).
		Return([]*job.Job{autoApproved}, nil)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateApproved, mock.Anything, 50).
		Return([]*job.Job{humanApproved}, nil)
	poster.On("Post", mock.Anything, autoApproved.ID, "sweeper", "").
		Return(stuckJob(shared.JobStatePosted), nil)
	poster.On("Post", mock.Anything, humanApproved.ID, "sweeper", "").
		Return(stuckJob(shared.JobStatePosted), nil)
	keys.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(2), nil)

	s.sweep(context.Background())

	jobs.AssertExpectations(t)
	poster.AssertExpectations(t)
	keys.AssertExpectations(t)
}

func TestSweep_PostFailureDoesNotStopTheBatch(t *testing.T) {
	jobs := new(MockJobRepository)
	keys := new(MockKeyStore)
	poster := new(MockLedgerPoster)
	recorder := new(MockFailureRecorder)
	s := newTestSweeper(jobs, keys, poster, recorder)

	first := stuckJob(shared.JobStateAutoApproved)
	second := stuckJob(shared.JobStateAutoApproved)

	jobs.On("ListInStateSince", mock.Anything, shared.JobStateProcessing, mock.Anything, 50).
		Return([]*job.Job{}, nil)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateAutoApproved, mock.Anything, 50).
		Return([]*job.Job{first, second}, nil)
	jobs.On("ListInStateSince", mock.Anything, shared.JobStateApproved, mock.Anything, 50).
		Return([]*job.Job{}, nil)
	poster.On("Post", mock.Anything, first.ID, "sweeper", "").
		Return(nil, errors.New("proposal superseded"))
	poster.On("Post", mock.Anything, second.ID, "sweeper", "").
		Return(stuckJob(shared.JobStatePosted), nil)
	keys.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(0), nil)

	s.sweep(context.Background())

	poster.AssertExpectations(t)
}

func TestSweep_ListFailureIsContained(t *testing.T) {
	jobs := new(MockJobRepository)
	keys := new(MockKeyStore)
	poster := new(MockLedgerPoster)
	recorder := new(MockFailureRecorder)
	s := newTestSweeper(jobs, keys, poster, recorder)

	jobs.On("ListInStateSince", mock.Anything, mock.Anything, mock.Anything, 50).
		Return(nil, errors.New("connection refused"))
	keys.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(0), nil)

	s.sweep(context.Background())

	keys.AssertExpectations(t)
}
