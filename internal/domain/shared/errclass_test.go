package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"plain errors default to retryable", base, ClassRetryable},
		{"terminal wrapper", Terminal(base), ClassTerminal},
		{"conflict wrapper", Conflict(base), ClassConflict},
		{"classification survives wrapping", fmt.Errorf("while posting: %w", Terminal(base)), ClassTerminal},
		{"nil is retryable", nil, ClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestTerminalPreservesMessageAndChain(t *testing.T) {
	base := errors.New("journal is not balanced")
	err := Terminal(base)

	assert.EqualError(t, err, "journal is not balanced")
	assert.True(t, errors.Is(err, base))
}

func TestTerminalNilIsNil(t *testing.T) {
	assert.NoError(t, Terminal(nil))
	assert.NoError(t, Conflict(nil))
}
