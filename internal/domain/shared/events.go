package shared

// Business event types emitted through the transactional outbox.
const (
	EventJobCreated       = "job.created"
	EventJobCompleted     = "job.completed"
	EventJobFailed        = "job.failed"
	EventProposalApproved = "proposal.approved"
	EventProposalRejected = "proposal.rejected"
	EventLedgerPosted     = "ledger.posted"
)

// Aggregate types used as outbox routing keys.
const (
	AggregateJob         = "job"
	AggregateProposal    = "proposal"
	AggregateLedgerEntry = "ledger_entry"
)

// JobCreatedPayload is the payload of a job.created event
type JobCreatedPayload struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
}

// JobCompletedPayload is the payload of a job.completed event
type JobCompletedPayload struct {
	JobID   string `json:"job_id"`
	Outcome string `json:"outcome"`
}

// JobFailedPayload is the payload of a job.failed event
type JobFailedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// ProposalDecisionPayload is the payload of proposal.approved and proposal.rejected events
type ProposalDecisionPayload struct {
	ProposalID string `json:"proposal_id"`
	JobID      string `json:"job_id"`
}

// LedgerPostedPayload is the payload of a ledger.posted event.
// At most one such event exists per ledger aggregate, mirroring the
// ledger entry uniqueness constraint.
type LedgerPostedPayload struct {
	LedgerEntryID string `json:"ledger_entry_id"`
	ProposalID    string `json:"proposal_id"`
	JobID         string `json:"job_id"`
}
