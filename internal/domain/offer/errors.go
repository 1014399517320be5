package offer

import "github.com/tripnest/service-booking/internal/common/domain"

// ErrQuoteExpired is returned when a selected offer's validity window has passed.
// Offers are never silently re-priced; the traveler must search again.
var ErrQuoteExpired = domain.NewError(domain.KindGone, "quote_expired",
	"offer quote has expired; search again")
