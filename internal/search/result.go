package search

import (
	"time"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/inventory"
)

// ErrNoAvailability is returned when every provider failed.
var ErrNoAvailability = domain.NewError(domain.KindUnavailable, "no_availability",
	"no inventory provider answered; try again shortly")

// Result is one aggregated search. Flights and Hotels are ranked.
type Result struct {
	QueryKey   string                           `json:"query_key"`
	Query      offer.SearchQuery                `json:"query"`
	Flights    []offer.Offer                    `json:"flights"`
	Hotels     []offer.Offer                    `json:"hotels"`
	Providers  []string                         `json:"providers"`
	Succeeded  []string                         `json:"succeeded"`
	Failures   map[string]inventory.FailureKind `json:"failures,omitempty"`
	SearchedAt time.Time                        `json:"searched_at"`
}

// Partial reports whether any provider failed or timed out.
func (r *Result) Partial() bool {
	return len(r.Failures) > 0
}

// Find returns the offer with the given provider and provider offer id.
func (r *Result) Find(providerID, providerOfferID string) (offer.Offer, bool) {
	for _, list := range [][]offer.Offer{r.Flights, r.Hotels} {
		for _, o := range list {
			if o.ProviderID == providerID && o.ProviderOfferID == providerOfferID {
				return o.Clone(), true
			}
		}
	}
	return offer.Offer{}, false
}

// Clone returns a deep copy so cached results are never shared mutably.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Flights = offer.CloneAll(r.Flights)
	out.Hotels = offer.CloneAll(r.Hotels)
	out.Providers = append([]string(nil), r.Providers...)
	out.Succeeded = append([]string(nil), r.Succeeded...)
	if r.Failures != nil {
		out.Failures = make(map[string]inventory.FailureKind, len(r.Failures))
		for k, v := range r.Failures {
			out.Failures[k] = v
		}
	}
	if r.Query.ReturnDate != nil {
		rd := *r.Query.ReturnDate
		out.Query.ReturnDate = &rd
	}
	return &out
}
