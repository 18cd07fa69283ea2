package job

import (
	"encoding/json"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
)

// Job is the authoritative per-document lifecycle record. One job exists per
// uploaded document; byte-identical re-uploads map back to the first job via
// the (tenant_id, file_checksum) uniqueness constraint.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       string          `json:"tenant_id"`
	CurrentState   shared.JobState `json:"current_state"`
	PreviousState  shared.JobState `json:"previous_state,omitempty"`
	CheckpointData json.RawMessage `json:"checkpoint_data,omitempty"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastError      string          `json:"last_error,omitempty"`
	Bucket         string          `json:"bucket"`
	ObjectKey      string          `json:"object_key"`
	FileChecksum   string          `json:"file_checksum"`
	DuplicateCount int             `json:"duplicate_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewJob creates a job in the UPLOADED state for a stored document
func NewJob(tenantID, bucket, objectKey, checksum string, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		TenantID:     tenantID,
		CurrentState: shared.JobStateUploaded,
		MaxAttempts:  maxAttempts,
		Bucket:       bucket,
		ObjectKey:    objectKey,
		FileChecksum: checksum,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RetriesExhausted reports whether the job has spent its retry budget
func (j *Job) RetriesExhausted() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}
