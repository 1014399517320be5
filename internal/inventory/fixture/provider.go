package fixture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/inventory"
)

var (
	errSoldOut      = errors.New("sold out")
	errUnknownOffer = errors.New("unknown offer")
	errUnknownHold  = errors.New("unknown or expired hold")
)

type hold struct {
	token     inventory.HoldToken
	offerID   string
	quantity  int
	confirmed bool
	reference string
}

// Provider is an inventory.Adapter backed by a Catalog. Stock is tracked per
// provider offer id (entry id plus date) and decremented by holds.
type Provider struct {
	catalog *Catalog
	now     func() time.Time

	mu        sync.Mutex
	stock     map[string]int
	holds     map[string]*hold
	holdByKey map[string]string
}

var _ inventory.Adapter = (*Provider)(nil)

// New creates a provider for the catalog.
func New(c *Catalog) *Provider {
	return &Provider{
		catalog:   c,
		now:       time.Now,
		stock:     map[string]int{},
		holds:     map[string]*hold{},
		holdByKey: map[string]string{},
	}
}

func (p *Provider) ID() string       { return p.catalog.Provider }
func (p *Provider) Kind() offer.Kind { return p.catalog.Kind }

// Search lists the catalog entries that serve the query.
func (p *Provider) Search(ctx context.Context, q offer.SearchQuery) ([]offer.Offer, error) {
	if err := p.simulateLatency(ctx); err != nil {
		return nil, inventory.Classify(p.ID(), inventory.OpSearch, err)
	}
	q = q.Normalize()
	validUntil := p.now().UTC().Add(p.catalog.QuoteTTL)

	p.mu.Lock()
	defer p.mu.Unlock()

	var out []offer.Offer
	switch p.catalog.Kind {
	case offer.KindFlight:
		for _, f := range p.catalog.Flights {
			if !strings.EqualFold(f.Origin, q.Origin) || !strings.EqualFold(f.Destination, q.Destination) {
				continue
			}
			id := offerID(f.ID, q.DepartDate)
			if p.available(id, f.Seats) < q.Travelers {
				continue
			}
			out = append(out, p.flightOffer(f, q, id, validUntil))
		}
	case offer.KindHotel:
		rooms := 0
		for _, h := range p.catalog.Hotels {
			if !strings.EqualFold(h.City, q.Destination) {
				continue
			}
			rooms = roomsNeeded(q.Travelers, h.Occupancy)
			id := offerID(h.ID, q.DepartDate)
			if p.available(id, h.Rooms) < rooms {
				continue
			}
			out = append(out, p.hotelOffer(h, q, id, rooms, validUntil))
		}
	}
	return out, nil
}

// Hold decrements stock for the offer. A repeated idempotency key returns the original hold.
func (p *Provider) Hold(ctx context.Context, req inventory.HoldRequest) (inventory.HoldToken, error) {
	if err := p.simulateLatency(ctx); err != nil {
		return inventory.HoldToken{}, inventory.Classify(p.ID(), inventory.OpHold, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dedupeKey := req.IdempotencyKey + "|" + req.Offer.ProviderOfferID
	if req.IdempotencyKey != "" {
		if token, ok := p.holdByKey[dedupeKey]; ok {
			if h, ok := p.holds[token]; ok {
				return h.token, nil
			}
		}
	}

	capacity, quantity, err := p.capacityFor(req)
	if err != nil {
		return inventory.HoldToken{}, inventory.NewFailure(p.ID(), inventory.OpHold, inventory.FailureUnavailable, err)
	}
	if p.available(req.Offer.ProviderOfferID, capacity) < quantity {
		return inventory.HoldToken{}, inventory.NewFailure(p.ID(), inventory.OpHold, inventory.FailureUnavailable, errSoldOut)
	}

	p.stock[req.Offer.ProviderOfferID] = p.available(req.Offer.ProviderOfferID, capacity) - quantity
	token := inventory.HoldToken{
		ProviderID:      p.ID(),
		ProviderOfferID: req.Offer.ProviderOfferID,
		Token:           uuid.NewString(),
		ExpiresAt:       p.now().UTC().Add(p.catalog.HoldTTL),
	}
	p.holds[token.Token] = &hold{token: token, offerID: req.Offer.ProviderOfferID, quantity: quantity}
	if req.IdempotencyKey != "" {
		p.holdByKey[dedupeKey] = token.Token
	}
	return token, nil
}

// Confirm turns a live hold into a booking. Confirming twice returns the same reference.
func (p *Provider) Confirm(ctx context.Context, t inventory.HoldToken) (inventory.Confirmation, error) {
	if err := p.simulateLatency(ctx); err != nil {
		return inventory.Confirmation{}, inventory.Classify(p.ID(), inventory.OpConfirm, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holds[t.Token]
	if !ok {
		return inventory.Confirmation{}, inventory.NewFailure(p.ID(), inventory.OpConfirm, inventory.FailureHoldExpired, errUnknownHold)
	}
	if !h.confirmed && p.now().After(h.token.ExpiresAt) {
		p.stock[h.offerID] += h.quantity
		delete(p.holds, t.Token)
		return inventory.Confirmation{}, inventory.NewFailure(p.ID(), inventory.OpConfirm, inventory.FailureHoldExpired, errUnknownHold)
	}
	if !h.confirmed {
		h.confirmed = true
		h.reference = strings.ToUpper(p.ID()[:min(3, len(p.ID()))]) + "-" + strings.ToUpper(t.Token[:8])
	}
	return inventory.Confirmation{
		ProviderID:  p.ID(),
		Reference:   h.reference,
		ConfirmedAt: p.now().UTC(),
	}, nil
}

// Release returns held stock. Confirmed holds and unknown tokens are ignored.
func (p *Provider) Release(ctx context.Context, t inventory.HoldToken) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holds[t.Token]
	if !ok || h.confirmed {
		return nil
	}
	p.stock[h.offerID] += h.quantity
	delete(p.holds, t.Token)
	return nil
}

// Available reports remaining stock for a provider offer id.
func (p *Provider) Available(providerOfferID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	capacity, err := p.capacityOf(providerOfferID)
	if err != nil {
		return 0
	}
	return p.available(providerOfferID, capacity)
}

func (p *Provider) available(id string, capacity int) int {
	if n, ok := p.stock[id]; ok {
		return n
	}
	return capacity
}

func (p *Provider) capacityFor(req inventory.HoldRequest) (capacity, quantity int, err error) {
	entryID := entryIDOf(req.Offer.ProviderOfferID)
	switch p.catalog.Kind {
	case offer.KindFlight:
		for _, f := range p.catalog.Flights {
			if f.ID == entryID {
				return f.Seats, req.Travelers, nil
			}
		}
	case offer.KindHotel:
		for _, h := range p.catalog.Hotels {
			if h.ID == entryID {
				return h.Rooms, roomsNeeded(req.Travelers, h.Occupancy), nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", errUnknownOffer, req.Offer.ProviderOfferID)
}

func (p *Provider) capacityOf(providerOfferID string) (int, error) {
	c, _, err := p.capacityFor(inventory.HoldRequest{Offer: offer.Offer{ProviderOfferID: providerOfferID}})
	return c, err
}

func (p *Provider) flightOffer(f FlightEntry, q offer.SearchQuery, id string, validUntil time.Time) offer.Offer {
	clock, _ := time.Parse("15:04", f.DepartTime)
	depart := q.DepartDate.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	return offer.Offer{
		ProviderID:      p.ID(),
		ProviderOfferID: id,
		Kind:            offer.KindFlight,
		Price:           offer.Money{Amount: f.PricePerTraveler * int64(q.Travelers), Currency: p.catalog.Currency},
		ValidUntil:      validUntil,
		Flight: &offer.FlightDetails{
			Origin:      strings.ToUpper(f.Origin),
			Destination: strings.ToUpper(f.Destination),
			Stops:       f.Stops,
			Duration:    f.Duration,
			Segments: []offer.Segment{{
				Carrier:      f.Carrier,
				FlightNumber: f.FlightNumber,
				Origin:       strings.ToUpper(f.Origin),
				Destination:  strings.ToUpper(f.Destination),
				DepartAt:     depart,
				ArriveAt:     depart.Add(f.Duration),
			}},
		},
	}
}

func (p *Provider) hotelOffer(h HotelEntry, q offer.SearchQuery, id string, rooms int, validUntil time.Time) offer.Offer {
	nights := q.Nights()
	return offer.Offer{
		ProviderID:      p.ID(),
		ProviderOfferID: id,
		Kind:            offer.KindHotel,
		Price:           offer.Money{Amount: h.NightlyRate * int64(nights) * int64(rooms), Currency: p.catalog.Currency},
		ValidUntil:      validUntil,
		Hotel: &offer.HotelDetails{
			PropertyName: h.PropertyName,
			City:         strings.ToUpper(h.City),
			RoomType:     h.RoomType,
			CheckIn:      q.DepartDate,
			CheckOut:     q.DepartDate.AddDate(0, 0, nights),
			Nights:       nights,
		},
	}
}

func (p *Provider) simulateLatency(ctx context.Context) error {
	if p.catalog.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.catalog.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func offerID(entryID string, date time.Time) string {
	return entryID + "@" + date.Format("20060102")
}

func entryIDOf(providerOfferID string) string {
	if i := strings.LastIndex(providerOfferID, "@"); i >= 0 {
		return providerOfferID[:i]
	}
	return providerOfferID
}

func roomsNeeded(travelers, occupancy int) int {
	if occupancy <= 0 {
		occupancy = 2
	}
	return (travelers + occupancy - 1) / occupancy
}
