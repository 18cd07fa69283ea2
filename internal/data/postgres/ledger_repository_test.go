package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculedger-governance/internal/domain/ledger"
)

func newLedgerRepoWithMock(t *testing.T) (*LedgerRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &LedgerRepository{querier: mock, logger: slog.Default()}, mock
}

func postedEntry() *ledger.Entry {
	return &ledger.Entry{
		ID:         uuid.New(),
		ProposalID: uuid.New(),
		JobID:      uuid.New(),
		Lines: []ledger.Line{
			{Account: "6000", Debit: decimal.NewFromInt(100)},
			{Account: "1600", Credit: decimal.NewFromInt(100)},
		},
		PostedBy: "policy-engine",
		PostedAt: time.Now().UTC(),
	}
}

func ledgerRows(e *ledger.Entry) *pgxmock.Rows {
	linesJSON, _ := json.Marshal(e.Lines)
	return pgxmock.NewRows([]string{
		"id", "proposal_id", "job_id", "lines", "posted_by", "posted_at", "reversal_of",
	}).AddRow(e.ID, e.ProposalID, e.JobID, linesJSON, e.PostedBy, e.PostedAt, e.ReversalOf)
}

func TestLedgerRepository_Create(t *testing.T) {
	t.Run("inserts the posted entry", func(t *testing.T) {
		repo, mock := newLedgerRepoWithMock(t)
		e := postedEntry()
		linesJSON, _ := json.Marshal(e.Lines)

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(e.ID, e.ProposalID, e.JobID, linesJSON, e.PostedBy, e.PostedAt, e.ReversalOf).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(context.Background(), e)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second posting for the same proposal is a duplicate", func(t *testing.T) {
		repo, mock := newLedgerRepoWithMock(t)
		e := postedEntry()

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(e.ID, e.ProposalID, e.JobID, pgxmock.AnyArg(), e.PostedBy, e.PostedAt, e.ReversalOf).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "ledger_entries_proposal_key"})

		err := repo.Create(context.Background(), e)

		assert.ErrorIs(t, err, ledger.ErrDuplicateEntry{ProposalID: e.ProposalID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_GetByProposalID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newLedgerRepoWithMock(t)
		e := postedEntry()

		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE proposal_id").
			WithArgs(e.ProposalID).
			WillReturnRows(ledgerRows(e))

		got, err := repo.GetByProposalID(context.Background(), e.ProposalID)

		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		require.Len(t, got.Lines, 2)
		assert.True(t, got.Lines[0].Debit.Equal(decimal.NewFromInt(100)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newLedgerRepoWithMock(t)
		proposalID := uuid.New()

		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE proposal_id").
			WithArgs(proposalID).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByProposalID(context.Background(), proposalID)

		assert.ErrorIs(t, err, ledger.ErrEntryNotFound{ProposalID: proposalID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_ListByJobID(t *testing.T) {
	repo, mock := newLedgerRepoWithMock(t)
	jobID := uuid.New()

	original := postedEntry()
	original.JobID = jobID
	reversal := original.Reversal("auditor@example.com")

	linesJSON, _ := json.Marshal(original.Lines)
	reversalLinesJSON, _ := json.Marshal(reversal.Lines)
	rows := pgxmock.NewRows([]string{
		"id", "proposal_id", "job_id", "lines", "posted_by", "posted_at", "reversal_of",
	}).
		AddRow(original.ID, original.ProposalID, original.JobID, linesJSON, original.PostedBy, original.PostedAt, original.ReversalOf).
		AddRow(reversal.ID, reversal.ProposalID, reversal.JobID, reversalLinesJSON, reversal.PostedBy, reversal.PostedAt, reversal.ReversalOf)

	mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE job_id").
		WithArgs(jobID).
		WillReturnRows(rows)

	entries, err := repo.ListByJobID(context.Background(), jobID)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].ReversalOf)
	require.NotNil(t, entries[1].ReversalOf)
	assert.Equal(t, original.ID, *entries[1].ReversalOf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_WithTx(t *testing.T) {
	repo, _ := newLedgerRepoWithMock(t)

	txRepo := repo.WithTx(nil)

	assert.NotSame(t, repo, txRepo)
}
