package offer

import (
	"fmt"
	"time"

	"github.com/tripnest/service-booking/internal/common/domain"
)

// Kind distinguishes flight inventory from hotel inventory.
type Kind string

const (
	KindFlight Kind = "flight"
	KindHotel  Kind = "hotel"
)

// IsValid returns true for a known kind.
func (k Kind) IsValid() bool {
	return k == KindFlight || k == KindHotel
}

// Money is an amount in minor units of an ISO 4217 currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Add sums two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, domain.NewValidationError(
			fmt.Sprintf("currency mismatch: %s and %s", m.Currency, other.Currency))
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// String formats the amount with two decimals.
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}

// Segment is one leg of a flight itinerary.
type Segment struct {
	Carrier      string    `json:"carrier"`
	FlightNumber string    `json:"flight_number"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	DepartAt     time.Time `json:"depart_at"`
	ArriveAt     time.Time `json:"arrive_at"`
}

// FlightDetails describes a flight offer.
type FlightDetails struct {
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	Segments    []Segment     `json:"segments"`
	Stops       int           `json:"stops"`
	Duration    time.Duration `json:"duration"`
}

// HotelDetails describes a hotel offer.
type HotelDetails struct {
	PropertyName string    `json:"property_name"`
	City         string    `json:"city"`
	RoomType     string    `json:"room_type"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
	Nights       int       `json:"nights"`
}

// Offer is a bookable priced option returned by a provider. Price is the
// total for every traveler in the query. Offers are values; callers that
// share them across goroutines hand out clones.
type Offer struct {
	ProviderID      string         `json:"provider_id"`
	ProviderOfferID string         `json:"provider_offer_id"`
	Kind            Kind           `json:"kind"`
	Price           Money          `json:"price"`
	ValidUntil      time.Time      `json:"valid_until"`
	Flight          *FlightDetails `json:"flight,omitempty"`
	Hotel           *HotelDetails  `json:"hotel,omitempty"`
}

// Key identifies the offer across providers.
func (o Offer) Key() string {
	return o.ProviderID + "/" + o.ProviderOfferID
}

// Expired reports whether the quote validity window has passed.
func (o Offer) Expired(now time.Time) bool {
	return now.After(o.ValidUntil)
}

// Validate checks the fields every adapter must populate.
func (o Offer) Validate() error {
	if o.ProviderID == "" || o.ProviderOfferID == "" {
		return domain.NewValidationError("offer provider id and offer id are required")
	}
	if !o.Kind.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("invalid offer kind: %s", o.Kind))
	}
	if o.Price.Amount <= 0 || len(o.Price.Currency) != 3 {
		return domain.NewValidationError("offer price must be positive with an ISO currency")
	}
	if o.ValidUntil.IsZero() {
		return domain.NewValidationError("offer validity is required")
	}
	switch o.Kind {
	case KindFlight:
		if o.Flight == nil {
			return domain.NewValidationError("flight offer has no flight details")
		}
	case KindHotel:
		if o.Hotel == nil {
			return domain.NewValidationError("hotel offer has no hotel details")
		}
	}
	return nil
}

// Clone returns a deep copy.
func (o Offer) Clone() Offer {
	out := o
	if o.Flight != nil {
		f := *o.Flight
		f.Segments = append([]Segment(nil), o.Flight.Segments...)
		out.Flight = &f
	}
	if o.Hotel != nil {
		h := *o.Hotel
		out.Hotel = &h
	}
	return out
}

// CloneAll deep-copies a slice of offers.
func CloneAll(in []Offer) []Offer {
	if in == nil {
		return nil
	}
	out := make([]Offer, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
