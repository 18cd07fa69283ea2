package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/ledger"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrAlreadyReversed indicates the entry has a reversal on file
var ErrAlreadyReversed = errors.New("ledger entry already reversed")

// LedgerServiceImpl implements the LedgerService interface
type LedgerServiceImpl struct {
	pgDB      *persistence.PostgresDB
	entries   ledger.Repository
	proposals proposal.Repository
	audit     audit.Recorder
	logger    *slog.Logger
}

// NewLedgerService creates a new ledger query service
func NewLedgerService(logger *slog.Logger, pgDB *persistence.PostgresDB, entries ledger.Repository, proposals proposal.Repository, recorder audit.Recorder) LedgerService {
	return &LedgerServiceImpl{
		pgDB:      pgDB,
		entries:   entries,
		proposals: proposals,
		audit:     recorder,
		logger:    logger,
	}
}

// GetCurrentProposal retrieves the job's current proposal. Returns nil if none
func (s *LedgerServiceImpl) GetCurrentProposal(ctx context.Context, jobID uuid.UUID) (*proposal.Proposal, error) {
	return s.proposals.GetCurrentByJobID(ctx, jobID)
}

// GetEntriesByJob retrieves all entries posted for a job, reversals included
func (s *LedgerServiceImpl) GetEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*ledger.Entry, error) {
	return s.entries.ListByJobID(ctx, jobID)
}

// Reverse books a correcting entry mirroring the original with the debit and
// credit sides swapped. Posted entries are immutable; reversal is the only
// correction mechanism, and it leaves the original untouched.
func (s *LedgerServiceImpl) Reverse(ctx context.Context, entryID uuid.UUID, actor, traceID string) (*ledger.Entry, error) {
	original, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if original.ReversalOf != nil {
		return nil, fmt.Errorf("entry %s is itself a reversal", entryID)
	}

	// One reversal per entry. Scanning the job's entries is enough; jobs post
	// a handful of entries at most.
	siblings, err := s.entries.ListByJobID(ctx, original.JobID)
	if err != nil {
		return nil, err
	}
	for _, e := range siblings {
		if e.ReversalOf != nil && *e.ReversalOf == entryID {
			return nil, ErrAlreadyReversed
		}
	}

	reversal := original.Reversal(actor)

	err = s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.entries.WithTx(tx).Create(ctx, reversal); err != nil {
			return err
		}

		payload, err := json.Marshal(reversal)
		if err != nil {
			return err
		}
		return s.audit.WithTx(tx).Record(ctx, &audit.Event{
			Action:     "ledger.reversed",
			EntityType: "ledger_entry",
			EntityID:   reversal.ID.String(),
			Actor:      actor,
			TraceID:    traceID,
			Payload:    payload,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Ledger entry reversed",
		"entry_id", entryID.String(),
		"reversal_id", reversal.ID.String(),
		"actor", actor,
	)
	return reversal, nil
}
