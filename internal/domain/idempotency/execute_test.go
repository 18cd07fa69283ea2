package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, k *Key) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, key string) (*Key, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Key), args.Error(1)
}

func (m *MockStore) Finish(ctx context.Context, key string, status shared.IdempotencyStatus, snapshot []byte) error {
	args := m.Called(ctx, key, status, snapshot)
	return args.Error(0)
}

func (m *MockStore) TakeOverExpired(ctx context.Context, key string, newExpiry time.Time) (bool, error) {
	args := m.Called(ctx, key, newExpiry)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func newExecutor(store Store) *Executor {
	return NewExecutor(store, Config{
		TTL:          24 * time.Hour,
		PollInterval: 5 * time.Millisecond,
		WaitDeadline: 100 * time.Millisecond,
	}, slog.Default())
}

type uploadOutcome struct {
	JobID string `json:"job_id"`
}

func TestExecute_FirstOwnerRunsAndSnapshots(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	store.On("Insert", mock.Anything, mock.MatchedBy(func(k *Key) bool {
		return k.Key == "key-1" && k.Operation == "document.upload" && k.Status == shared.IdempotencyStatusProcessing
	})).Return(nil)
	store.On("Finish", mock.Anything, "key-1", shared.IdempotencyStatusCompleted, mock.Anything).Return(nil)

	ran := 0
	res, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		ran++
		return uploadOutcome{JobID: "j-1"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.False(t, res.Replayed)

	var out uploadOutcome
	require.NoError(t, json.Unmarshal(res.Value, &out))
	assert.Equal(t, "j-1", out.JobID)
	store.AssertExpectations(t)
}

func TestExecute_FailureIsSnapshottedAndReturned(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	store.On("Finish", mock.Anything, "key-1", shared.IdempotencyStatusFailed, mock.MatchedBy(func(snapshot []byte) bool {
		var snap failureSnapshot
		return json.Unmarshal(snapshot, &snap) == nil && snap.Error == "bucket unreachable"
	})).Return(nil)

	_, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("bucket unreachable")
	})

	assert.EqualError(t, err, "bucket unreachable")
	store.AssertExpectations(t)
}

func TestExecute_CompletedKeyReplaysWithoutRunning(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	snapshot, _ := json.Marshal(uploadOutcome{JobID: "j-1"})
	store.On("Insert", mock.Anything, mock.Anything).Return(ErrKeyExists)
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:              "key-1",
		Status:           shared.IdempotencyStatusCompleted,
		ResponseSnapshot: snapshot,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}, nil)

	ran := 0
	res, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		ran++
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, ran)
	assert.True(t, res.Replayed)
	assert.JSONEq(t, string(snapshot), string(res.Value))
	store.AssertExpectations(t)
}

func TestExecute_FailedKeyReplaysFailure(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	snapshot, _ := json.Marshal(failureSnapshot{Error: "bucket unreachable"})
	store.On("Insert", mock.Anything, mock.Anything).Return(ErrKeyExists)
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:              "key-1",
		Status:           shared.IdempotencyStatusFailed,
		ResponseSnapshot: snapshot,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}, nil)

	res, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		t.Fatal("operation must not re-run for a failed key inside the window")
		return nil, nil
	})

	require.ErrorIs(t, err, ErrReplayedFailure{})
	assert.True(t, res.Replayed)
	assert.Contains(t, err.Error(), "bucket unreachable")
	assert.Equal(t, shared.ClassTerminal, shared.Classify(err))
}

func TestExecute_ExpiredKeyIsTakenOver(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	store.On("Insert", mock.Anything, mock.Anything).Return(ErrKeyExists)
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:       "key-1",
		Status:    shared.IdempotencyStatusCompleted,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}, nil).Once()
	store.On("TakeOverExpired", mock.Anything, "key-1", mock.Anything).Return(true, nil)
	store.On("Finish", mock.Anything, "key-1", shared.IdempotencyStatusCompleted, mock.Anything).Return(nil)

	ran := 0
	res, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		ran++
		return uploadOutcome{JobID: "j-2"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.False(t, res.Replayed)
	store.AssertExpectations(t)
}

func TestExecute_ConcurrentOwnerSnapshotIsAwaited(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	snapshot, _ := json.Marshal(uploadOutcome{JobID: "j-1"})
	store.On("Insert", mock.Anything, mock.Anything).Return(ErrKeyExists)
	// Owner still running on the first two polls, finished on the third.
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:       "key-1",
		Status:    shared.IdempotencyStatusProcessing,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}, nil).Twice()
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:              "key-1",
		Status:           shared.IdempotencyStatusCompleted,
		ResponseSnapshot: snapshot,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}, nil).Once()

	res, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		t.Fatal("waiter must not execute while the owner holds the key")
		return nil, nil
	})

	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.JSONEq(t, string(snapshot), string(res.Value))
	store.AssertExpectations(t)
}

func TestExecute_WaitDeadlineYieldsConflict(t *testing.T) {
	store := new(MockStore)
	e := NewExecutor(store, Config{
		TTL:          24 * time.Hour,
		PollInterval: time.Millisecond,
		WaitDeadline: 10 * time.Millisecond,
	}, slog.Default())

	store.On("Insert", mock.Anything, mock.Anything).Return(ErrKeyExists)
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:       "key-1",
		Status:    shared.IdempotencyStatusProcessing,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}, nil)

	_, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})

	assert.ErrorIs(t, err, ErrConflictInProgress{Key: "key-1"})
}

func TestExecute_LostTakeOverRaceFallsBackToWaiting(t *testing.T) {
	store := new(MockStore)
	e := newExecutor(store)

	snapshot, _ := json.Marshal(uploadOutcome{JobID: "j-3"})
	store.On("Insert", mock.Anything, mock.Anything).Return(ErrKeyExists)
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:       "key-1",
		Status:    shared.IdempotencyStatusCompleted,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}, nil).Once()
	store.On("TakeOverExpired", mock.Anything, "key-1", mock.Anything).Return(false, nil)
	store.On("Get", mock.Anything, "key-1").Return(&Key{
		Key:              "key-1",
		Status:           shared.IdempotencyStatusCompleted,
		ResponseSnapshot: snapshot,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}, nil)

	res, err := e.Execute(context.Background(), "key-1", "document.upload", func(ctx context.Context) (interface{}, error) {
		t.Fatal("loser of the take-over race must not execute")
		return nil, nil
	})

	require.NoError(t, err)
	assert.True(t, res.Replayed)
	store.AssertExpectations(t)
}

func TestKeyExpired(t *testing.T) {
	now := time.Now().UTC()
	k := NewKey("key-1", "document.upload", time.Hour)

	assert.False(t, k.Expired(now))
	assert.True(t, k.Expired(now.Add(2*time.Hour)))
}
