// Package inventory defines the contract every flight or hotel provider
// integration satisfies, and the decorators that bound its latency.
package inventory

import (
	"context"
	"time"

	"github.com/tripnest/service-booking/internal/domain/offer"
)

// Adapter wraps one external inventory provider. Implementations normalize
// provider payloads into offer.Offer and report every failure as *Failure.
type Adapter interface {
	// ID is the stable provider identifier used in offers and failures.
	ID() string
	// Kind reports whether the provider sells flights or hotels.
	Kind() offer.Kind
	// Search returns the provider's offers for the query.
	Search(ctx context.Context, q offer.SearchQuery) ([]offer.Offer, error)
	// Hold reserves an offer. Fails Unavailable when the inventory is gone.
	Hold(ctx context.Context, req HoldRequest) (HoldToken, error)
	// Confirm converts a hold into a booking. Fails HoldExpired or ProviderError.
	Confirm(ctx context.Context, hold HoldToken) (Confirmation, error)
	// Release drops a hold. Best effort; callers log and continue on error.
	Release(ctx context.Context, hold HoldToken) error
}

// HoldRequest asks a provider to reserve one offer. IdempotencyKey lets the
// provider collapse retried holds from the same commit attempt.
type HoldRequest struct {
	Offer          offer.Offer `json:"offer"`
	Travelers      int         `json:"travelers"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// HoldToken identifies a temporary reservation at a provider.
type HoldToken struct {
	ProviderID      string    `json:"provider_id"`
	ProviderOfferID string    `json:"provider_offer_id"`
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Confirmation is a provider's durable booking reference.
type Confirmation struct {
	ProviderID  string    `json:"provider_id"`
	Reference   string    `json:"reference"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}
