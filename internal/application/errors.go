package application

import (
	"fmt"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
)

var (
	// ErrInventoryUnavailable is returned when a provider would not hold a selected offer.
	ErrInventoryUnavailable = domain.NewError(domain.KindUnavailable, "inventory_unavailable",
		"selected inventory is no longer available")

	// ErrPaymentDeclined is returned when payment authorization failed.
	ErrPaymentDeclined = domain.NewError(domain.KindPaymentRequired, "payment_declined",
		"payment could not be authorized")

	// ErrConfirmationFailed is returned when no provider confirmed the booking.
	ErrConfirmationFailed = domain.NewError(domain.KindUnavailable, "confirmation_failed",
		"no provider confirmed the booking; the payment was released")

	// ErrCommitInterrupted is recorded for attempts recovered before payment.
	ErrCommitInterrupted = domain.NewError(domain.KindUnavailable, "commit_interrupted",
		"the booking attempt was interrupted; retry with a new idempotency key")
)

// recordedErrors maps journaled error codes back to sentinels for replay.
var recordedErrors = map[string]*domain.Error{
	ErrInventoryUnavailable.Code:      ErrInventoryUnavailable,
	ErrPaymentDeclined.Code:           ErrPaymentDeclined,
	ErrConfirmationFailed.Code:        ErrConfirmationFailed,
	ErrCommitInterrupted.Code:         ErrCommitInterrupted,
	session.ErrVersionConflict.Code:   session.ErrVersionConflict,
	session.ErrInvalidTransition.Code: session.ErrInvalidTransition,
	offer.ErrQuoteExpired.Code:        offer.ErrQuoteExpired,
}

func replayedError(code, message string) error {
	sentinel, ok := recordedErrors[code]
	if !ok {
		return domain.NewError(domain.KindInternal, code, message)
	}
	return fmt.Errorf("%w: previous attempt failed: %s", sentinel, message)
}
