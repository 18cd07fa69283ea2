package postgres

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculedger-governance/internal/domain/outbox"
	"github.com/doculedger-governance/internal/domain/shared"
)

func newOutboxRepoWithMock(t *testing.T) (*OutboxRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &OutboxRepository{querier: mock, logger: slog.Default()}, mock
}

func TestOutboxRepository_Create(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)

	e, err := outbox.NewEvent(shared.EventJobCreated, shared.AggregateJob, "job-1", map[string]string{"job_id": "job-1"}, 5)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO outbox_events").
		WithArgs(e.EventID, e.EventType, e.AggregateType, e.AggregateID, e.Payload, e.Status,
			e.Attempts, e.MaxAttempts, e.ScheduledAt, e.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	err = repo.Create(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_Create_DuplicateLedgerPosted(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)

	e, err := outbox.NewEvent(shared.EventLedgerPosted, shared.AggregateLedgerEntry, "entry-1", map[string]string{}, 5)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO outbox_events").
		WithArgs(e.EventID, e.EventType, e.AggregateType, e.AggregateID, e.Payload, e.Status,
			e.Attempts, e.MaxAttempts, e.ScheduledAt, e.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "outbox_events_ledger_posted_key"})

	err = repo.Create(context.Background(), e)
	assert.ErrorIs(t, err, outbox.ErrDuplicateEvent{
		EventType:     shared.EventLedgerPosted,
		AggregateType: shared.AggregateLedgerEntry,
		AggregateID:   "entry-1",
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_Claim(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(shared.OutboxStatusProcessing, pgxmock.AnyArg(), "worker-1", int64(7), shared.OutboxStatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := repo.Claim(context.Background(), 7, "worker-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_Claim_Lost(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(shared.OutboxStatusProcessing, pgxmock.AnyArg(), "worker-2", int64(7), shared.OutboxStatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err := repo.Claim(context.Background(), 7, "worker-2")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_GetDue(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	now := time.Now().UTC()

	e, err := outbox.NewEvent(shared.EventJobCreated, shared.AggregateJob, "job-1", map[string]string{}, 5)
	require.NoError(t, err)
	e.ID = 3

	rows := pgxmock.NewRows([]string{
		"id", "event_id", "event_type", "aggregate_type", "aggregate_id", "payload", "status",
		"attempts", "max_attempts", "scheduled_at", "claimed_at", "claimed_by", "last_error", "created_at",
	}).AddRow(
		e.ID, e.EventID, e.EventType, e.AggregateType, e.AggregateID, e.Payload, e.Status,
		e.Attempts, e.MaxAttempts, e.ScheduledAt, nil, nil, nil, e.CreatedAt,
	)

	mock.ExpectQuery(`SELECT (.+) FROM outbox_events(.+)ORDER BY scheduled_at ASC, id ASC`).
		WithArgs(shared.OutboxStatusPending, now, 100).
		WillReturnRows(rows)

	due, err := repo.GetDue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(3), due[0].ID)
	assert.Empty(t, due[0].ClaimedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_Reschedule_NotFound(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	at := time.Now().Add(10 * time.Second)

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(shared.OutboxStatusPending, at, "delivery refused", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Reschedule(context.Background(), 9, at, "delivery refused")
	assert.ErrorIs(t, err, outbox.ErrEventNotFound{ID: 9})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ReclaimStale(t *testing.T) {
	repo, mock := newOutboxRepoWithMock(t)
	olderThan := time.Now().Add(-30 * time.Second)

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(shared.OutboxStatusPending, shared.OutboxStatusProcessing, olderThan).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.ReclaimStale(context.Background(), olderThan)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
