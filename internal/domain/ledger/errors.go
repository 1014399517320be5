package ledger

import "github.com/tripnest/service-booking/internal/common/domain"

var (
	// ErrDuplicateReference is returned when a record with the same reference exists.
	ErrDuplicateReference = domain.NewError(domain.KindConflict, "duplicate_reference",
		"a booking with this reference already exists")

	// ErrBookingNotFound is returned when no record matches.
	ErrBookingNotFound = domain.NewError(domain.KindNotFound, "booking_not_found",
		"booking not found")
)
