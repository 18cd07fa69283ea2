package outbox

import (
	"encoding/json"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/google/uuid"
)

// Event is one business event recorded in the same transaction as the state
// change it describes, then delivered asynchronously by the dispatcher.
type Event struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	EventType     string              `json:"event_type"`
	AggregateType string              `json:"aggregate_type"`
	AggregateID   string              `json:"aggregate_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	MaxAttempts   int                 `json:"max_attempts"`
	ScheduledAt   time.Time           `json:"scheduled_at"`
	ClaimedAt     *time.Time          `json:"claimed_at,omitempty"`
	ClaimedBy     string              `json:"claimed_by,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewEvent builds a pending event scheduled for immediate delivery
func NewEvent(eventType, aggregateType, aggregateID string, payload interface{}, maxAttempts int) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Event{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       body,
		Status:        shared.OutboxStatusPending,
		MaxAttempts:   maxAttempts,
		ScheduledAt:   now,
		CreatedAt:     now,
	}, nil
}
