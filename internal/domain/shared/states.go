package shared

// JobState defines the document pipeline lifecycle states
type JobState string

const (
	JobStateUploaded      JobState = "UPLOADED"
	JobStateProcessing    JobState = "PROCESSING"
	JobStateProposed      JobState = "PROPOSED"
	JobStateAutoApproved  JobState = "AUTO_APPROVED"
	JobStateNeedsApproval JobState = "NEEDS_APPROVAL"
	JobStateApproved      JobState = "APPROVED"
	JobStatePosted        JobState = "POSTED"
	JobStateRejected      JobState = "REJECTED"
	JobStateFailed        JobState = "FAILED"
)

// IsTerminal reports whether the state admits no further transitions
func (s JobState) IsTerminal() bool {
	return s == JobStatePosted || s == JobStateRejected || s == JobStateFailed
}

// ProposalStatus defines proposal lifecycle states
type ProposalStatus string

const (
	ProposalStatusPending    ProposalStatus = "PENDING"
	ProposalStatusApproved   ProposalStatus = "APPROVED"
	ProposalStatusRejected   ProposalStatus = "REJECTED"
	ProposalStatusSuperseded ProposalStatus = "SUPERSEDED"
)

// ApprovalStatus defines approval decision states
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// OutboxStatus defines outbox event delivery states
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusDelivered  OutboxStatus = "DELIVERED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDeadLetter OutboxStatus = "DEAD_LETTER"
)

// IdempotencyStatus defines idempotency key lifecycle states
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "PROCESSING"
	IdempotencyStatusCompleted  IdempotencyStatus = "COMPLETED"
	IdempotencyStatusFailed     IdempotencyStatus = "FAILED"
)

// RiskLevel is the extraction subsystem's risk assessment of a proposal
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)
