package statemachine

import "github.com/doculedger-governance/internal/domain/shared"

// transitions is the complete legal edge set of the job lifecycle graph.
// UPLOADED appears as a target so a stuck PROCESSING job can be handed back
// for another attempt without inventing a separate retry state. REJECTED and
// FAILED are reachable from every non-terminal state so an explicit cancel
// or exhausted retry budget always has a legal edge.
var transitions = map[shared.JobState][]shared.JobState{
	shared.JobStateUploaded:      {shared.JobStateProcessing, shared.JobStateRejected, shared.JobStateFailed},
	shared.JobStateProcessing:    {shared.JobStateProposed, shared.JobStateUploaded, shared.JobStateRejected, shared.JobStateFailed},
	shared.JobStateProposed:      {shared.JobStateAutoApproved, shared.JobStateNeedsApproval, shared.JobStateRejected, shared.JobStateFailed},
	shared.JobStateAutoApproved:  {shared.JobStatePosted, shared.JobStateRejected, shared.JobStateFailed},
	shared.JobStateNeedsApproval: {shared.JobStateApproved, shared.JobStateRejected, shared.JobStateFailed},
	shared.JobStateApproved:      {shared.JobStatePosted, shared.JobStateRejected, shared.JobStateFailed},
	shared.JobStatePosted:        {},
	shared.JobStateRejected:      {},
	shared.JobStateFailed:        {},
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to shared.JobState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
