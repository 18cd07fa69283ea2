package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/doculedger-governance/internal/domain/shared"
)

// ErrKeyExists indicates another execution already owns the key
var ErrKeyExists = errors.New("idempotency key already exists")

// Store persists idempotency keys. Insert must be atomic on key uniqueness:
// exactly one of two concurrent inserts for the same key succeeds.
type Store interface {
	Insert(ctx context.Context, k *Key) error
	Get(ctx context.Context, key string) (*Key, error)
	// Finish records the outcome of the owning execution
	Finish(ctx context.Context, key string, status shared.IdempotencyStatus, snapshot []byte) error
	// TakeOverExpired re-arms an expired key for a new execution via a
	// conditional update. Returns false if the key has not expired.
	TakeOverExpired(ctx context.Context, key string, newExpiry time.Time) (bool, error)
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// ErrKeyNotFound indicates a missing idempotency key
type ErrKeyNotFound struct {
	Key string
}

func (e ErrKeyNotFound) Error() string {
	return "idempotency key not found: " + e.Key
}

func (e ErrKeyNotFound) Is(target error) bool {
	_, ok := target.(ErrKeyNotFound)
	return ok
}

// ErrConflictInProgress indicates the first execution of this key is still
// running past the bounded wait. Callers should retry later.
type ErrConflictInProgress struct {
	Key string
}

func (e ErrConflictInProgress) Error() string {
	return "operation with idempotency key still in progress: " + e.Key
}

func (e ErrConflictInProgress) Is(target error) bool {
	_, ok := target.(ErrConflictInProgress)
	return ok
}

// ErrorClass surfaces in-flight conflicts as retryable "try later" conditions
func (e ErrConflictInProgress) ErrorClass() shared.Class {
	return shared.ClassConflict
}
