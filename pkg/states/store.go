package states

import (
	"context"
	"time"
)

// Store persists state records. Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts rec. When limit is positive the store counts the owner's
	// records of rec.StateType and inserts in one atomic step, returning
	// ErrLimitExceeded if the count has already reached limit.
	Create(ctx context.Context, rec *Record, limit int) error

	// UpdateStatus changes the status of a record and returns the updated
	// record with PreviousStatus set to the status it replaced, read in the
	// same atomic step. Returns ErrRecordNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Record, error)

	// Get returns a record by id or ErrRecordNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Count returns the number of records of stateType held by owner.
	Count(ctx context.Context, owner Owner, stateType string) (int, error)

	// List returns the records matching q, newest first.
	List(ctx context.Context, q Query) ([]*Record, error)

	// DeleteOwner removes every record of owner and returns how many were removed.
	DeleteOwner(ctx context.Context, owner Owner) (int, error)
}

// StatusUpdate describes a status change.
type StatusUpdate struct {
	Status      string
	CompletedAt *time.Time
	UpdatedAt   time.Time
}
