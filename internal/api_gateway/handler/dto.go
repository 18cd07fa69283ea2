package handler

import (
	"time"

	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/ledger"
	"github.com/doculedger-governance/internal/domain/proposal"
)

// UploadDocumentRequest registers a scanned document already stored in the
// document bucket
type UploadDocumentRequest struct {
	TenantID  string `json:"tenant_id" binding:"required"`
	Bucket    string `json:"bucket" binding:"required"`
	ObjectKey string `json:"object_key" binding:"required"`
	Checksum  string `json:"checksum" binding:"required,len=64,hexadecimal"`
}

// JobResponse represents a job in API responses
type JobResponse struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	CurrentState   string `json:"current_state"`
	PreviousState  string `json:"previous_state,omitempty"`
	Attempts       int    `json:"attempts"`
	MaxAttempts    int    `json:"max_attempts"`
	LastError      string `json:"last_error,omitempty"`
	Bucket         string `json:"bucket"`
	ObjectKey      string `json:"object_key"`
	FileChecksum   string `json:"file_checksum"`
	DuplicateCount int    `json:"duplicate_count"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// UploadResponse reports the job an upload mapped to
type UploadResponse struct {
	Job       JobResponse `json:"job"`
	Duplicate bool        `json:"duplicate"`
	Replayed  bool        `json:"replayed"`
}

// DecideApprovalRequest carries a human review decision
type DecideApprovalRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Approver string `json:"approver" binding:"required"`
	Comment  string `json:"comment,omitempty"`
}

// ApprovalResponse represents an approval in API responses
type ApprovalResponse struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Approver   string `json:"approver,omitempty"`
	Comment    string `json:"comment,omitempty"`
	DecidedAt  string `json:"decided_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ProposalLineResponse represents one proposed journal line
type ProposalLineResponse struct {
	Account     string `json:"account"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
	TaxBase     string `json:"tax_base,omitempty"`
}

// ProposalResponse represents a proposal in API responses
type ProposalResponse struct {
	ID         string                 `json:"id"`
	JobID      string                 `json:"job_id"`
	VendorName string                 `json:"vendor_name"`
	VendorTax  string                 `json:"vendor_tax_id,omitempty"`
	Currency   string                 `json:"currency"`
	Lines      []ProposalLineResponse `json:"lines"`
	Confidence float64                `json:"confidence"`
	RiskLevel  string                 `json:"risk_level"`
	Status     string                 `json:"status"`
	CreatedAt  string                 `json:"created_at"`
}

// LedgerLineResponse represents one posted ledger line
type LedgerLineResponse struct {
	Account     string `json:"account"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
}

// LedgerEntryResponse represents a posted ledger entry in API responses
type LedgerEntryResponse struct {
	ID         string               `json:"id"`
	ProposalID string               `json:"proposal_id"`
	JobID      string               `json:"job_id"`
	Lines      []LedgerLineResponse `json:"lines"`
	PostedBy   string               `json:"posted_by"`
	PostedAt   string               `json:"posted_at"`
	ReversalOf string               `json:"reversal_of,omitempty"`
}

// ReverseEntryRequest books a correcting entry for a posted one
type ReverseEntryRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// AuditEventResponse represents an audit record in API responses
type AuditEventResponse struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Actor      string `json:"actor"`
	OldState   string `json:"old_state,omitempty"`
	NewState   string `json:"new_state,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

func mapJobToResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:             j.ID.String(),
		TenantID:       j.TenantID,
		CurrentState:   string(j.CurrentState),
		PreviousState:  string(j.PreviousState),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		LastError:      j.LastError,
		Bucket:         j.Bucket,
		ObjectKey:      j.ObjectKey,
		FileChecksum:   j.FileChecksum,
		DuplicateCount: j.DuplicateCount,
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      j.UpdatedAt.Format(time.RFC3339),
	}
}

func mapProposalToResponse(p *proposal.Proposal) ProposalResponse {
	lines := make([]ProposalLineResponse, 0, len(p.Lines))
	for _, l := range p.Lines {
		line := ProposalLineResponse{
			Account:     l.Account,
			Debit:       l.Debit.String(),
			Credit:      l.Credit.String(),
			Description: l.Description,
		}
		if l.IsTaxLine() {
			line.TaxBase = l.TaxBase.String()
		}
		lines = append(lines, line)
	}
	return ProposalResponse{
		ID:         p.ID.String(),
		JobID:      p.JobID.String(),
		VendorName: p.Vendor.Name,
		VendorTax:  p.Vendor.TaxID,
		Currency:   p.Currency,
		Lines:      lines,
		Confidence: p.Confidence,
		RiskLevel:  string(p.RiskLevel),
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
	}
}

func mapLedgerEntryToResponse(e *ledger.Entry) LedgerEntryResponse {
	lines := make([]LedgerLineResponse, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, LedgerLineResponse{
			Account:     l.Account,
			Debit:       l.Debit.String(),
			Credit:      l.Credit.String(),
			Description: l.Description,
		})
	}
	response := LedgerEntryResponse{
		ID:         e.ID.String(),
		ProposalID: e.ProposalID.String(),
		JobID:      e.JobID.String(),
		Lines:      lines,
		PostedBy:   e.PostedBy,
		PostedAt:   e.PostedAt.Format(time.RFC3339),
	}
	if e.ReversalOf != nil {
		response.ReversalOf = e.ReversalOf.String()
	}
	return response
}
