package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingJobID = errors.New("proposed journal is missing job id")
	ErrNoEntries    = errors.New("proposed journal has no entries")
)

// ProposedEntry is one suggested debit/credit line from the extraction subsystem.
// TaxBase is zero for non-tax lines; for VAT lines it carries the base amount
// the tax was computed from, so policy can check the implied rate.
type ProposedEntry struct {
	Account     string          `json:"account"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	TaxBase     decimal.Decimal `json:"tax_base,omitempty"`
}

// ProposedVendor identifies the invoice counterparty
type ProposedVendor struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"`
}

// ProposedJournal is the message the extraction subsystem delivers once it has
// turned a scanned document into suggested journal entries. It arrives either
// on the proposals Kafka topic or through the gateway intake endpoint.
type ProposedJournal struct {
	JobID         uuid.UUID       `json:"job_id"`
	Vendor        ProposedVendor  `json:"vendor"`
	Currency      string          `json:"currency"`
	Entries       []ProposedEntry `json:"entries"`
	Confidence    float64         `json:"confidence"`
	RiskLevel     RiskLevel       `json:"risk_level"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Validate checks the structural minimum for a proposed journal. Structural
// violations never retry, so they are classified terminal at the source.
func (p *ProposedJournal) Validate() error {
	if p.JobID == uuid.Nil {
		return Terminal(ErrMissingJobID)
	}
	if len(p.Entries) == 0 {
		return Terminal(ErrNoEntries)
	}
	return nil
}
