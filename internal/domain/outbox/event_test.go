package outbox

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	jobID := uuid.New()
	payload := shared.JobCreatedPayload{
		JobID:    jobID.String(),
		TenantID: "tenant-1",
	}

	e, err := NewEvent(shared.EventJobCreated, shared.AggregateJob, jobID.String(), payload, 5)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, e.EventID)
	assert.Equal(t, shared.EventJobCreated, e.EventType)
	assert.Equal(t, "job", e.AggregateType)
	assert.Equal(t, jobID.String(), e.AggregateID)
	assert.Equal(t, shared.OutboxStatusPending, e.Status)
	assert.Equal(t, 0, e.Attempts)
	assert.Equal(t, 5, e.MaxAttempts)
	assert.Equal(t, e.CreatedAt, e.ScheduledAt)

	var decoded shared.JobCreatedPayload
	require.NoError(t, json.Unmarshal(e.Payload, &decoded))
	assert.Equal(t, jobID.String(), decoded.JobID)
	assert.Equal(t, "tenant-1", decoded.TenantID)
}

func TestNewEvent_UnmarshalablePayload(t *testing.T) {
	_, err := NewEvent(shared.EventJobCreated, "job", "x", math.Inf(1), 5)
	assert.Error(t, err)
}
