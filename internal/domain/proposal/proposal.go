package proposal

import (
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one debit/credit row of a proposed journal
type Line struct {
	Account     string          `json:"account"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	TaxBase     decimal.Decimal `json:"tax_base,omitempty"`
}

// IsTaxLine reports whether the line carries a tax base to sanity-check against
func (l Line) IsTaxLine() bool {
	return l.TaxBase.IsPositive()
}

// Amount is the magnitude of the line, whichever side it sits on
func (l Line) Amount() decimal.Decimal {
	if l.Debit.IsPositive() {
		return l.Debit
	}
	return l.Credit
}

// Vendor identifies the counterparty on the source document
type Vendor struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"`
}

// Proposal is a suggested journal for one job. A job may accumulate superseded
// proposals on retry; exactly one is current, enforced by a partial unique index.
type Proposal struct {
	ID         uuid.UUID             `json:"id"`
	JobID      uuid.UUID             `json:"job_id"`
	Vendor     Vendor                `json:"vendor"`
	Currency   string                `json:"currency"`
	Lines      []Line                `json:"lines"`
	Confidence float64               `json:"confidence"`
	RiskLevel  shared.RiskLevel      `json:"risk_level"`
	Status     shared.ProposalStatus `json:"status"`
	CreatedAt  time.Time             `json:"created_at"`
}

// FromProposedJournal builds a pending proposal from the extraction message
func FromProposedJournal(msg *shared.ProposedJournal) *Proposal {
	lines := make([]Line, 0, len(msg.Entries))
	for _, e := range msg.Entries {
		lines = append(lines, Line{
			Account:     e.Account,
			Debit:       e.Debit,
			Credit:      e.Credit,
			Description: e.Description,
			TaxBase:     e.TaxBase,
		})
	}
	return &Proposal{
		ID:         uuid.New(),
		JobID:      msg.JobID,
		Vendor:     Vendor{Name: msg.Vendor.Name, TaxID: msg.Vendor.TaxID},
		Currency:   msg.Currency,
		Lines:      lines,
		Confidence: msg.Confidence,
		RiskLevel:  msg.RiskLevel,
		Status:     shared.ProposalStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// DebitTotal sums the debit side of all lines
func (p *Proposal) DebitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// CreditTotal sums the credit side of all lines
func (p *Proposal) CreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// TotalAmount is the gross value of the proposal, taken from the debit side.
// Balance between the two sides is a policy check, never an assumption.
func (p *Proposal) TotalAmount() decimal.Decimal {
	return p.DebitTotal()
}
