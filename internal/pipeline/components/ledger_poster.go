package components

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/ledger"
	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/statemachine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerPoster turns an approved job into a posted ledger entry. Exactly-once
// posting does not rest on this code running once: the entry insert and the
// ledger.posted outbox insert are both guarded by unique indexes, so a crashed
// and re-run posting converges on the same single entry and single event.
type LedgerPoster struct {
	machine   *statemachine.Machine
	proposals proposal.Repository
	entries   ledger.Repository
	publisher *OutboxPublisher
	audit     audit.Recorder
	logger    *slog.Logger
}

func NewLedgerPoster(logger *slog.Logger, machine *statemachine.Machine, proposals proposal.Repository, entries ledger.Repository, publisher *OutboxPublisher, recorder audit.Recorder) *LedgerPoster {
	return &LedgerPoster{
		machine:   machine,
		proposals: proposals,
		entries:   entries,
		publisher: publisher,
		audit:     recorder,
		logger:    logger,
	}
}

// Post advances the job to POSTED and writes the ledger entry, the outbox
// events, and the audit record in the same transaction. Safe to call again
// for a job that already posted.
func (lp *LedgerPoster) Post(ctx context.Context, jobID uuid.UUID, postedBy, traceID string) (*job.Job, error) {
	j, err := lp.machine.Advance(ctx, jobID, shared.JobStatePosted, statemachine.AdvanceOptions{
		Actor:   postedBy,
		TraceID: traceID,
		SideEffect: func(ctx context.Context, tx pgx.Tx, j *job.Job) error {
			proposals := lp.proposals.WithTx(tx)
			entries := lp.entries.WithTx(tx)

			p, err := proposals.GetCurrentByJobID(ctx, jobID)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no current proposal for job %s: %w", jobID, proposal.ErrProposalNotFound{})
			}

			entry := ledger.FromProposal(p, postedBy)
			if err := entries.Create(ctx, entry); err != nil {
				if errors.Is(err, ledger.ErrDuplicateEntry{}) {
					existing, getErr := entries.GetByProposalID(ctx, p.ID)
					if getErr != nil {
						return getErr
					}
					entry = existing
				} else {
					return err
				}
			}

			if p.Status != shared.ProposalStatusApproved {
				if err := proposals.UpdateStatus(ctx, p.ID, shared.ProposalStatusApproved); err != nil {
					return err
				}
			}

			if err := lp.publisher.Publish(ctx, tx, shared.EventLedgerPosted, shared.AggregateLedgerEntry, entry.ID.String(), shared.LedgerPostedPayload{
				LedgerEntryID: entry.ID.String(),
				ProposalID:    p.ID.String(),
				JobID:         jobID.String(),
			}); err != nil {
				return err
			}
			if err := lp.publisher.Publish(ctx, tx, shared.EventJobCompleted, shared.AggregateJob, jobID.String(), shared.JobCompletedPayload{
				JobID:   jobID.String(),
				Outcome: "posted",
			}); err != nil {
				return err
			}

			payload, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			return lp.audit.WithTx(tx).Record(ctx, &audit.Event{
				Action:     "ledger.posted",
				EntityType: "ledger_entry",
				EntityID:   entry.ID.String(),
				Actor:      postedBy,
				TraceID:    traceID,
				Payload:    payload,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	lp.logger.Info("Ledger entry posted", "job_id", jobID.String(), "posted_by", postedBy)
	return j, nil
}
