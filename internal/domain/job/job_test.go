package job

import (
	"errors"
	"testing"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewJob(t *testing.T) {
	j := NewJob("tenant-1", "scans", "2026/08/invoice-001.pdf", "abc123", 3)

	assert.NotEqual(t, uuid.Nil, j.ID)
	assert.Equal(t, "tenant-1", j.TenantID)
	assert.Equal(t, shared.JobStateUploaded, j.CurrentState)
	assert.Equal(t, 0, j.Attempts)
	assert.Equal(t, 3, j.MaxAttempts)
	assert.Equal(t, 0, j.DuplicateCount)
	assert.Equal(t, j.CreatedAt, j.UpdatedAt)
}

func TestRetriesExhausted(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		expected    bool
	}{
		{"no attempts yet", 0, 3, false},
		{"under budget", 2, 3, false},
		{"at budget", 3, 3, true},
		{"over budget", 4, 3, true},
		{"zero max means unlimited", 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{Attempts: tt.attempts, MaxAttempts: tt.maxAttempts}
			assert.Equal(t, tt.expected, j.RetriesExhausted())
		})
	}
}

func TestErrJobNotFound_Is(t *testing.T) {
	id := uuid.New()
	err := ErrJobNotFound{ID: id}

	assert.True(t, errors.Is(err, ErrJobNotFound{}))
	assert.True(t, errors.Is(err, ErrJobNotFound{ID: id}))
	assert.False(t, errors.Is(err, ErrJobNotFound{ID: uuid.New()}))
	assert.False(t, errors.Is(errors.New("other"), ErrJobNotFound{}))
}

func TestErrInvalidTransition_IsTerminal(t *testing.T) {
	err := ErrInvalidTransition{From: shared.JobStatePosted, To: shared.JobStateProcessing}

	assert.True(t, errors.Is(err, ErrInvalidTransition{}))
	assert.Equal(t, shared.ClassTerminal, shared.Classify(err))
}
