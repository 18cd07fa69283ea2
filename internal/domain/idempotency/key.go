package idempotency

import (
	"encoding/json"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
)

// Key maps a client-supplied or content-derived idempotency key to the outcome
// of the first execution. Repeat requests inside the expiry window replay the
// stored snapshot instead of re-executing side effects.
type Key struct {
	Key              string                   `json:"key"`
	Operation        string                   `json:"operation"`
	Status           shared.IdempotencyStatus `json:"status"`
	ResponseSnapshot json.RawMessage          `json:"response_snapshot,omitempty"`
	ExpiresAt        time.Time                `json:"expires_at"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// NewKey creates a key owned by the current execution
func NewKey(key, operation string, ttl time.Duration) *Key {
	now := time.Now().UTC()
	return &Key{
		Key:       key,
		Operation: operation,
		Status:    shared.IdempotencyStatusProcessing,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Expired reports whether the key window has passed, allowing reuse by a
// logically new request
func (k *Key) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}
