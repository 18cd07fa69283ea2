package ledger

import (
	"time"

	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one posted debit/credit row
type Line struct {
	Account     string          `json:"account"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// Entry is the posted result of an approved proposal. At most one entry exists
// per proposal, enforced by a partial unique index; the entry is immutable once
// written except through explicit reversal entries that reference it.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	ProposalID uuid.UUID  `json:"proposal_id"`
	JobID      uuid.UUID  `json:"job_id"`
	Lines      []Line     `json:"lines"`
	PostedBy   string     `json:"posted_by"`
	PostedAt   time.Time  `json:"posted_at"`
	ReversalOf *uuid.UUID `json:"reversal_of,omitempty"`
}

// FromProposal builds the ledger entry for an approved proposal,
// mirroring its lines verbatim
func FromProposal(p *proposal.Proposal, postedBy string) *Entry {
	lines := make([]Line, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, Line{
			Account:     l.Account,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		})
	}
	return &Entry{
		ID:         uuid.New(),
		ProposalID: p.ID,
		JobID:      p.JobID,
		Lines:      lines,
		PostedBy:   postedBy,
		PostedAt:   time.Now().UTC(),
	}
}

// Reversal builds a correcting entry that mirrors this one with the
// debit and credit sides swapped
func (e *Entry) Reversal(postedBy string) *Entry {
	lines := make([]Line, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, Line{
			Account:     l.Account,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Description: l.Description,
		})
	}
	original := e.ID
	return &Entry{
		ID:         uuid.New(),
		ProposalID: e.ProposalID,
		JobID:      e.JobID,
		Lines:      lines,
		PostedBy:   postedBy,
		PostedAt:   time.Now().UTC(),
		ReversalOf: &original,
	}
}
