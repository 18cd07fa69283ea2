package proposal

import (
	"testing"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromProposedJournal(t *testing.T) {
	jobID := uuid.New()
	msg := &shared.ProposedJournal{
		JobID:      jobID,
		Vendor:     shared.ProposedVendor{Name: "ACME GmbH", TaxID: "DE123456789"},
		Currency:   "EUR",
		Confidence: 0.91,
		RiskLevel:  shared.RiskLevelMedium,
		Entries: []shared.ProposedEntry{
			{Account: "6000", Debit: decimal.NewFromInt(100), Description: "net"},
			{Account: "1576", Debit: decimal.NewFromInt(19), TaxBase: decimal.NewFromInt(100)},
			{Account: "1600", Credit: decimal.NewFromInt(119)},
		},
	}

	p := FromProposedJournal(msg)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, jobID, p.JobID)
	assert.Equal(t, "ACME GmbH", p.Vendor.Name)
	assert.Equal(t, "DE123456789", p.Vendor.TaxID)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, shared.ProposalStatusPending, p.Status)
	assert.Equal(t, shared.RiskLevelMedium, p.RiskLevel)
	require.Len(t, p.Lines, 3)
	assert.True(t, p.Lines[1].TaxBase.Equal(decimal.NewFromInt(100)))
}

func TestProposalTotals(t *testing.T) {
	p := &Proposal{
		Lines: []Line{
			{Account: "6000", Debit: decimal.NewFromInt(100)},
			{Account: "1576", Debit: decimal.NewFromInt(19)},
			{Account: "1600", Credit: decimal.NewFromInt(119)},
		},
	}

	assert.True(t, p.DebitTotal().Equal(decimal.NewFromInt(119)))
	assert.True(t, p.CreditTotal().Equal(decimal.NewFromInt(119)))
	assert.True(t, p.TotalAmount().Equal(decimal.NewFromInt(119)))
}

func TestLineHelpers(t *testing.T) {
	assert.True(t, Line{TaxBase: decimal.NewFromInt(100)}.IsTaxLine())
	assert.False(t, Line{}.IsTaxLine())

	debit := Line{Debit: decimal.NewFromInt(40)}
	credit := Line{Credit: decimal.NewFromInt(60)}
	assert.True(t, debit.Amount().Equal(decimal.NewFromInt(40)))
	assert.True(t, credit.Amount().Equal(decimal.NewFromInt(60)))
}
