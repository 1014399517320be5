package search

import (
	"sort"

	"github.com/tripnest/service-booking/internal/domain/offer"
)

// rank orders offers by price, then flight duration, then provider id, then
// provider offer id. Prices are only compared within one currency: offers in
// the most common currency come first, other currencies follow as groups.
// The order is total, so equal inputs always rank equally.
func rank(offers []offer.Offer) {
	primary := primaryCurrency(offers)
	sort.SliceStable(offers, func(i, j int) bool {
		a, b := offers[i], offers[j]
		if a.Price.Currency != b.Price.Currency {
			if a.Price.Currency == primary || b.Price.Currency == primary {
				return a.Price.Currency == primary
			}
			return a.Price.Currency < b.Price.Currency
		}
		if a.Price.Amount != b.Price.Amount {
			return a.Price.Amount < b.Price.Amount
		}
		if da, db := duration(a), duration(b); da != db {
			return da < db
		}
		if a.ProviderID != b.ProviderID {
			return a.ProviderID < b.ProviderID
		}
		return a.ProviderOfferID < b.ProviderOfferID
	})
}

// primaryCurrency is the currency most offers are priced in, ties going to
// the alphabetically first.
func primaryCurrency(offers []offer.Offer) string {
	counts := make(map[string]int)
	for _, o := range offers {
		counts[o.Price.Currency]++
	}
	best := ""
	for cur, n := range counts {
		if n > counts[best] || (n == counts[best] && cur < best) {
			best = cur
		}
	}
	return best
}

func duration(o offer.Offer) int64 {
	if o.Flight == nil {
		return 0
	}
	return int64(o.Flight.Duration)
}

// dedupe keeps the first offer per (provider, provider offer id).
func dedupe(offers []offer.Offer) []offer.Offer {
	seen := make(map[string]struct{}, len(offers))
	out := offers[:0]
	for _, o := range offers {
		if _, dup := seen[o.Key()]; dup {
			continue
		}
		seen[o.Key()] = struct{}{}
		out = append(out, o)
	}
	return out
}
