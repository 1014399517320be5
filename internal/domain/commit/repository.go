package commit

import (
	"context"
	"time"
)

// Repository stores commit attempts keyed by idempotency key.
type Repository interface {
	// Begin inserts a. If an attempt with the same key exists it is returned
	// with created=false and a is not stored.
	Begin(ctx context.Context, a *Attempt) (existing *Attempt, created bool, err error)
	Save(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, key string) (*Attempt, error)
	// ListStale returns unfinished attempts last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Attempt, error)
}
