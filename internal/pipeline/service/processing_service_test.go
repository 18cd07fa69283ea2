package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/policy"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
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

type MockJournalIntake struct {
	mock.Mock
}

func (m *MockJournalIntake) Begin(ctx context.Context, jobID uuid.UUID, traceID string) (*job.Job, error) {
	args := m.Called(ctx, jobID, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJournalIntake) Intake(ctx context.Context, msg *shared.ProposedJournal) (*proposal.Proposal, *job.Job, error) {
	args := m.Called(ctx, msg)
	var p *proposal.Proposal
	var j *job.Job
	if args.Get(0) != nil {
		p = args.Get(0).(*proposal.Proposal)
	}
	if args.Get(1) != nil {
		j = args.Get(1).(*job.Job)
	}
	return p, j, args.Error(2)
}

func (m *MockJournalIntake) CurrentProposal(ctx context.Context, jobID uuid.UUID) (*proposal.Proposal, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*proposal.Proposal), args.Error(1)
}

type MockPolicyEvaluator struct {
	mock.Mock
}

func (m *MockPolicyEvaluator) Evaluate(p *proposal.Proposal) policy.Result {
	args := m.Called(p)
	return args.Get(0).(policy.Result)
}

type MockDecisionRouter struct {
	mock.Mock
}

func (m *MockDecisionRouter) Route(ctx context.Context, p *proposal.Proposal, verdict policy.Result, traceID string) (*job.Job, error) {
	args := m.Called(ctx, p, verdict, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
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

type MockDLQProducer struct {
	mock.Mock
}

func (m *MockDLQProducer) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDLQProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}

type processingMocks struct {
	jobs            *MockJobRepository
	intake          *MockJournalIntake
	evaluator       *MockPolicyEvaluator
	router          *MockDecisionRouter
	poster          *MockLedgerPoster
	failureRecorder *MockFailureRecorder
	dlq             *MockDLQProducer
}

func newProcessingService(t *testing.T) (ProcessingService, *processingMocks) {
	t.Helper()
	m := &processingMocks{
		jobs:            new(MockJobRepository),
		intake:          new(MockJournalIntake),
		evaluator:       new(MockPolicyEvaluator),
		router:          new(MockDecisionRouter),
		poster:          new(MockLedgerPoster),
		failureRecorder: new(MockFailureRecorder),
		dlq:             new(MockDLQProducer),
	}
	svc := NewProcessingService(
		m.jobs, m.intake, m.evaluator, m.router, m.poster, m.failureRecorder, m.dlq, slog.Default(),
	)
	return svc, m
}

func (m *processingMocks) assertExpectations(t *testing.T) {
	t.Helper()
	m.jobs.AssertExpectations(t)
	m.intake.AssertExpectations(t)
	m.evaluator.AssertExpectations(t)
	m.router.AssertExpectations(t)
	m.poster.AssertExpectations(t)
	m.failureRecorder.AssertExpectations(t)
	m.dlq.AssertExpectations(t)
}

func validJournal(jobID uuid.UUID) *shared.ProposedJournal {
	return &shared.ProposedJournal{
		JobID:    jobID,
		Vendor:   shared.ProposedVendor{Name: "ACME GmbH"},
		Currency: "EUR",
		Entries: []shared.ProposedEntry{
			{Account: "6000", Debit: decimal.NewFromInt(100)},
			{Account: "1600", Credit: decimal.NewFromInt(100)},
		},
		Confidence:    0.95,
		RiskLevel:     shared.RiskLevelLow,
		CorrelationID: "trace-1",
		Timestamp:     time.Now().UTC(),
	}
}

func jobInState(id uuid.UUID, state shared.JobState) *job.Job {
	return &job.Job{
		ID:           id,
		TenantID:     "tenant-1",
		CurrentState: state,
		MaxAttempts:  3,
	}
}

func TestProcessJournal(t *testing.T) {
	jobID := uuid.New()
	propID := uuid.New()

	tests := []struct {
		name          string
		msg           func() *shared.ProposedJournal
		setupMocks    func(m *processingMocks)
		expectedError error
	}{
		{
			name: "auto approved journal is posted",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateUploaded), nil)
				m.intake.On("Begin", mock.Anything, jobID, "trace-1").Return(jobInState(jobID, shared.JobStateProcessing), nil)
				p := &proposal.Proposal{ID: propID, JobID: jobID, Status: shared.ProposalStatusPending}
				m.intake.On("Intake", mock.Anything, mock.Anything).Return(p, jobInState(jobID, shared.JobStateProposed), nil)
				m.evaluator.On("Evaluate", p).Return(policy.Result{Overall: policy.OutcomeApprove})
				m.router.On("Route", mock.Anything, p, mock.Anything, "trace-1").Return(jobInState(jobID, shared.JobStateAutoApproved), nil)
				m.poster.On("Post", mock.Anything, jobID, PolicyActor, "trace-1").Return(jobInState(jobID, shared.JobStatePosted), nil)
			},
		},
		{
			name: "review journal is parked without posting",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateUploaded), nil)
				m.intake.On("Begin", mock.Anything, jobID, "trace-1").Return(jobInState(jobID, shared.JobStateProcessing), nil)
				p := &proposal.Proposal{ID: propID, JobID: jobID, Status: shared.ProposalStatusPending}
				m.intake.On("Intake", mock.Anything, mock.Anything).Return(p, jobInState(jobID, shared.JobStateProposed), nil)
				m.evaluator.On("Evaluate", p).Return(policy.Result{Overall: policy.OutcomeReview})
				m.router.On("Route", mock.Anything, p, mock.Anything, "trace-1").Return(jobInState(jobID, shared.JobStateNeedsApproval), nil)
			},
		},
		{
			name: "malformed journal goes to the DLQ and the job is failed",
			msg: func() *shared.ProposedJournal {
				msg := validJournal(jobID)
				msg.Entries = nil
				return msg
			},
			setupMocks: func(m *processingMocks) {
				m.dlq.On("PublishToDLQ", mock.Anything, jobID.String(), mock.Anything, mock.MatchedBy(func(reason string) bool {
					return reason != ""
				})).Return(nil)
				m.failureRecorder.On("RecordFailure", mock.Anything, jobID, mock.Anything, "trace-1").
					Return(jobInState(jobID, shared.JobStateFailed), nil)
			},
		},
		{
			name: "journal without a job id skips the failure recorder",
			msg: func() *shared.ProposedJournal {
				msg := validJournal(uuid.Nil)
				return msg
			},
			setupMocks: func(m *processingMocks) {
				m.dlq.On("PublishToDLQ", mock.Anything, uuid.Nil.String(), mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name: "unknown job is acknowledged after dead lettering",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(nil, job.ErrJobNotFound{ID: jobID})
				m.dlq.On("PublishToDLQ", mock.Anything, jobID.String(), mock.Anything, "unknown job").Return(nil)
			},
		},
		{
			name: "job lookup failure is retried by the broker",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(nil, errors.New("connection reset"))
			},
			expectedError: errors.New("connection reset"),
		},
		{
			name: "redelivery for a job past intake is a no-op",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateNeedsApproval), nil)
			},
		},
		{
			name: "redelivery for a terminal job is a no-op",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStatePosted), nil)
			},
		},
		{
			name: "redelivery for a proposed job resumes at evaluation",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateProposed), nil)
				p := &proposal.Proposal{ID: propID, JobID: jobID, Status: shared.ProposalStatusPending}
				m.intake.On("CurrentProposal", mock.Anything, jobID).Return(p, nil)
				m.evaluator.On("Evaluate", p).Return(policy.Result{Overall: policy.OutcomeApprove})
				m.router.On("Route", mock.Anything, p, mock.Anything, "trace-1").Return(jobInState(jobID, shared.JobStateAutoApproved), nil)
				m.poster.On("Post", mock.Anything, jobID, PolicyActor, "trace-1").Return(jobInState(jobID, shared.JobStatePosted), nil)
			},
		},
		{
			name: "resumed proposed job routed to review is parked",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateProposed), nil)
				p := &proposal.Proposal{ID: propID, JobID: jobID, Status: shared.ProposalStatusPending}
				m.intake.On("CurrentProposal", mock.Anything, jobID).Return(p, nil)
				m.evaluator.On("Evaluate", p).Return(policy.Result{Overall: policy.OutcomeReview})
				m.router.On("Route", mock.Anything, p, mock.Anything, "trace-1").Return(jobInState(jobID, shared.JobStateNeedsApproval), nil)
			},
		},
		{
			name: "proposal load failure on resume is retried by the broker",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateProposed), nil)
				m.intake.On("CurrentProposal", mock.Anything, jobID).Return(nil, errors.New("connection reset"))
			},
			expectedError: errors.New("connection reset"),
		},
		{
			name: "retryable intake failure leaves the message uncommitted",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateUploaded), nil)
				m.intake.On("Begin", mock.Anything, jobID, "trace-1").Return(nil, errors.New("deadlock detected"))
			},
			expectedError: errors.New("deadlock detected"),
		},
		{
			name: "terminal intake failure is recorded and acknowledged",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateUploaded), nil)
				m.intake.On("Begin", mock.Anything, jobID, "trace-1").Return(jobInState(jobID, shared.JobStateProcessing), nil)
				m.intake.On("Intake", mock.Anything, mock.Anything).
					Return(nil, nil, shared.Terminal(errors.New("journal is not balanced")))
				m.failureRecorder.On("RecordFailure", mock.Anything, jobID, mock.Anything, "trace-1").
					Return(jobInState(jobID, shared.JobStateFailed), nil)
				m.dlq.On("PublishToDLQ", mock.Anything, jobID.String(), mock.Anything, "journal is not balanced").Return(nil)
			},
		},
		{
			name: "terminal posting failure after auto approval is recorded",
			msg:  func() *shared.ProposedJournal { return validJournal(jobID) },
			setupMocks: func(m *processingMocks) {
				m.jobs.On("GetByID", mock.Anything, jobID).Return(jobInState(jobID, shared.JobStateUploaded), nil)
				m.intake.On("Begin", mock.Anything, jobID, "trace-1").Return(jobInState(jobID, shared.JobStateProcessing), nil)
				p := &proposal.Proposal{ID: propID, JobID: jobID, Status: shared.ProposalStatusPending}
				m.intake.On("Intake", mock.Anything, mock.Anything).Return(p, jobInState(jobID, shared.JobStateProposed), nil)
				m.evaluator.On("Evaluate", p).Return(policy.Result{Overall: policy.OutcomeApprove})
				m.router.On("Route", mock.Anything, p, mock.Anything, "trace-1").Return(jobInState(jobID, shared.JobStateAutoApproved), nil)
				m.poster.On("Post", mock.Anything, jobID, PolicyActor, "trace-1").
					Return(nil, shared.Terminal(errors.New("proposal superseded")))
				m.failureRecorder.On("RecordFailure", mock.Anything, jobID, mock.Anything, "trace-1").
					Return(jobInState(jobID, shared.JobStateFailed), nil)
				m.dlq.On("PublishToDLQ", mock.Anything, jobID.String(), mock.Anything, "proposal superseded").Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newProcessingService(t)
			tt.setupMocks(m)

			err := svc.ProcessJournal(context.Background(), tt.msg())

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}
			m.assertExpectations(t)
		})
	}
}

func TestProcessJournal_NilDLQProducerIsTolerated(t *testing.T) {
	jobID := uuid.New()
	m := &processingMocks{
		jobs:            new(MockJobRepository),
		intake:          new(MockJournalIntake),
		evaluator:       new(MockPolicyEvaluator),
		router:          new(MockDecisionRouter),
		poster:          new(MockLedgerPoster),
		failureRecorder: new(MockFailureRecorder),
	}
	svc := NewProcessingService(
		m.jobs, m.intake, m.evaluator, m.router, m.poster, m.failureRecorder, nil, slog.Default(),
	)

	m.jobs.On("GetByID", mock.Anything, jobID).Return(nil, job.ErrJobNotFound{ID: jobID})

	err := svc.ProcessJournal(context.Background(), validJournal(jobID))
	assert.NoError(t, err)
	m.jobs.AssertExpectations(t)
}
