package ledger

import "context"

// Repository is append-only: records are never updated or deleted.
type Repository interface {
	Append(ctx context.Context, rec *Record) error
	GetByReference(ctx context.Context, reference string) (*Record, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)
	ListFollowUps(ctx context.Context, limit int) ([]*Record, error)
}
