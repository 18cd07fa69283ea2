package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// Event is one append-only audit record. Rows are never updated or deleted;
// corrections are new rows referencing the corrected one via CorrectsID.
type Event struct {
	ID         int64           `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor"`
	OldState   string          `json:"old_state,omitempty"`
	NewState   string          `json:"new_state,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CorrectsID *int64          `json:"corrects_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder is the append-only evidence sink. Record runs on the same
// transaction as the state change it documents; losing an audit record is not
// acceptable even where external notification can be retried.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Event, error)
	WithTx(tx pgx.Tx) Recorder
}
