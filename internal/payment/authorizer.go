// Package payment is the boundary to the card payment collaborator. Card
// processing itself happens elsewhere; this service only authorizes and voids.
package payment

import (
	"context"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
)

var (
	// ErrDeclined is returned when the payment method was refused.
	ErrDeclined = domain.NewError(domain.KindPaymentRequired, "card_declined",
		"payment was declined")

	// ErrUnavailable is returned when the payment service cannot be reached.
	ErrUnavailable = domain.NewError(domain.KindUnavailable, "payment_unavailable",
		"payment service unavailable")
)

// AuthorizeRequest asks for a hold on the traveler's payment method.
type AuthorizeRequest struct {
	Amount           offer.Money
	PaymentMethodRef string
	IdempotencyKey   string
	SessionID        string
}

// Authorizer authorizes and voids payments. Authorize must be idempotent by
// IdempotencyKey: a retry returns the original authorization.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (string, error)
	Void(ctx context.Context, authorizationRef string) error
}
