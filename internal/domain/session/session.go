package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
)

// DefaultIdleTimeout is how long a session survives without writes.
const DefaultIdleTimeout = 24 * time.Hour

// Session is the aggregate root for a traveler's in-progress booking.
type Session struct {
	id      uuid.UUID
	ownerID *string
	step    Step
	query   offer.SearchQuery

	flight       *offer.Offer
	hotel        *offer.Offer
	hotelSkipped bool

	passengers       []Passenger
	paymentMethodRef string
	paymentAuthRef   string
	bookingReference string
	failureReason    string

	idleTimeout time.Duration
	version     int64
	createdAt   time.Time
	updatedAt   time.Time
	expiresAt   time.Time
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	ID               uuid.UUID
	OwnerID          *string
	Step             Step
	Query            offer.SearchQuery
	Flight           *offer.Offer
	Hotel            *offer.Offer
	HotelSkipped     bool
	Passengers       []Passenger
	PaymentMethodRef string
	PaymentAuthRef   string
	BookingReference string
	FailureReason    string
	IdleTimeout      time.Duration
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExpiresAt        time.Time
}

// NewSession creates a session in the started step for a validated query.
func NewSession(query offer.SearchQuery, ownerID *string, idleTimeout time.Duration, now time.Time) (*Session, error) {
	q := query.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if ownerID != nil && strings.TrimSpace(*ownerID) == "" {
		ownerID = nil
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	now = now.UTC()
	return &Session{
		id:          uuid.New(),
		ownerID:     ownerID,
		step:        StepStarted,
		query:       q,
		idleTimeout: idleTimeout,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
		expiresAt:   now.Add(idleTimeout),
	}, nil
}

// ReconstructSession rebuilds a Session from persistence data (no validation).
func ReconstructSession(s Snapshot) *Session {
	return &Session{
		id:               s.ID,
		ownerID:          s.OwnerID,
		step:             s.Step,
		query:            s.Query,
		flight:           s.Flight,
		hotel:            s.Hotel,
		hotelSkipped:     s.HotelSkipped,
		passengers:       s.Passengers,
		paymentMethodRef: s.PaymentMethodRef,
		paymentAuthRef:   s.PaymentAuthRef,
		bookingReference: s.BookingReference,
		failureReason:    s.FailureReason,
		idleTimeout:      s.IdleTimeout,
		version:          s.Version,
		createdAt:        s.CreatedAt,
		updatedAt:        s.UpdatedAt,
		expiresAt:        s.ExpiresAt,
	}
}

// Snapshot returns a copy of the session state for persistence.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:               s.id,
		OwnerID:          s.OwnerID(),
		Step:             s.step,
		Query:            s.query,
		Flight:           s.FlightOffer(),
		Hotel:            s.HotelOffer(),
		HotelSkipped:     s.hotelSkipped,
		Passengers:       s.Passengers(),
		PaymentMethodRef: s.paymentMethodRef,
		PaymentAuthRef:   s.paymentAuthRef,
		BookingReference: s.bookingReference,
		FailureReason:    s.failureReason,
		IdleTimeout:      s.idleTimeout,
		Version:          s.version,
		CreatedAt:        s.createdAt,
		UpdatedAt:        s.updatedAt,
		ExpiresAt:        s.expiresAt,
	}
}

// --- Getters ---

// ID returns the session's unique identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// OwnerID returns the traveler's opaque identity, or nil for anonymous sessions.
func (s *Session) OwnerID() *string {
	if s.ownerID == nil {
		return nil
	}
	id := *s.ownerID
	return &id
}

// Step returns the current step.
func (s *Session) Step() Step { return s.step }

// Query returns the search query the session is bound to.
func (s *Session) Query() offer.SearchQuery { return s.query }

// FlightOffer returns a copy of the selected flight offer, or nil.
func (s *Session) FlightOffer() *offer.Offer { return cloneOffer(s.flight) }

// HotelOffer returns a copy of the selected hotel offer, or nil.
func (s *Session) HotelOffer() *offer.Offer { return cloneOffer(s.hotel) }

// HotelSkipped reports whether the traveler explicitly declined a hotel.
func (s *Session) HotelSkipped() bool { return s.hotelSkipped }

// Passengers returns a copy of the entered passenger details.
func (s *Session) Passengers() []Passenger {
	if s.passengers == nil {
		return nil
	}
	return append([]Passenger(nil), s.passengers...)
}

// PaymentMethodRef returns the tokenized payment method reference.
func (s *Session) PaymentMethodRef() string { return s.paymentMethodRef }

// PaymentAuthRef returns the payment authorization reference once authorized.
func (s *Session) PaymentAuthRef() string { return s.paymentAuthRef }

// BookingReference returns the ledger reference once committed.
func (s *Session) BookingReference() string { return s.bookingReference }

// FailureReason returns why the commit failed, if it did.
func (s *Session) FailureReason() string { return s.failureReason }

// Version returns the entity version for optimistic locking.
func (s *Session) Version() int64 { return s.version }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }

// ExpiresAt returns when the session becomes idle-expired.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// IsIdleExpired reports whether a non-terminal session has passed its idle window.
func (s *Session) IsIdleExpired(now time.Time) bool {
	return !s.step.IsTerminal() && now.After(s.expiresAt)
}

// Offers returns the selected offers in booking order: flight, then hotel.
func (s *Session) Offers() []offer.Offer {
	var out []offer.Offer
	if s.flight != nil {
		out = append(out, s.flight.Clone())
	}
	if s.hotel != nil {
		out = append(out, s.hotel.Clone())
	}
	return out
}

// Total sums the selected offer prices.
func (s *Session) Total() (offer.Money, error) {
	if s.flight == nil {
		return offer.Money{}, domain.NewValidationError("no flight selected")
	}
	total := s.flight.Price
	if s.hotel != nil {
		return total.Add(s.hotel.Price)
	}
	return total, nil
}

// --- Behavior ---

// SelectFlight records a flight choice. From later steps this is a revision
// that clears the hotel decision and entered details.
func (s *Session) SelectFlight(o offer.Offer, now time.Time) error {
	if err := s.guard(StepFlightSelected); err != nil {
		return err
	}
	if o.Kind != offer.KindFlight || o.Flight == nil {
		return fmt.Errorf("%w: offer %s is not a flight", ErrInvalidTransition, o.Key())
	}
	if o.Expired(now) {
		return fmt.Errorf("%w: %w", offer.ErrQuoteExpired, ErrInvalidTransition)
	}
	if o.Flight.Destination != s.query.Destination {
		return fmt.Errorf("%w: flight arrives at %s but the trip destination is %s",
			ErrInvalidTransition, o.Flight.Destination, s.query.Destination)
	}

	f := o.Clone()
	s.flight = &f
	s.clearHotel()
	s.clearDetails()
	s.step = StepFlightSelected
	s.touch(now)
	return nil
}

// SelectHotel records a hotel choice priced in the same currency as the flight.
func (s *Session) SelectHotel(o offer.Offer, now time.Time) error {
	if err := s.guard(StepHotelSelected); err != nil {
		return err
	}
	if o.Kind != offer.KindHotel || o.Hotel == nil {
		return fmt.Errorf("%w: offer %s is not a hotel", ErrInvalidTransition, o.Key())
	}
	if o.Expired(now) {
		return fmt.Errorf("%w: %w", offer.ErrQuoteExpired, ErrInvalidTransition)
	}
	if s.flight == nil {
		return fmt.Errorf("%w: select a flight first", ErrInvalidTransition)
	}
	if o.Price.Currency != s.flight.Price.Currency {
		return fmt.Errorf("%w: hotel is priced in %s but the flight in %s",
			ErrInvalidTransition, o.Price.Currency, s.flight.Price.Currency)
	}

	h := o.Clone()
	s.hotel = &h
	s.hotelSkipped = false
	s.clearDetails()
	s.step = StepHotelSelected
	s.touch(now)
	return nil
}

// SkipHotel records an explicit decision to book without a hotel.
func (s *Session) SkipHotel(now time.Time) error {
	if err := s.guard(StepHotelSkipped); err != nil {
		return err
	}
	s.clearHotel()
	s.hotelSkipped = true
	s.clearDetails()
	s.step = StepHotelSkipped
	s.touch(now)
	return nil
}

// EnterDetails records one passenger per traveler and the payment method.
func (s *Session) EnterDetails(passengers []Passenger, paymentMethodRef string, now time.Time) error {
	if err := s.guard(StepDetailsEntered); err != nil {
		return err
	}
	if len(passengers) != s.query.Travelers {
		return fmt.Errorf("%w: %d passengers entered for %d travelers",
			ErrInvalidTransition, len(passengers), s.query.Travelers)
	}
	for _, p := range passengers {
		if err := p.checkRequired(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
	}
	if strings.TrimSpace(paymentMethodRef) == "" {
		return fmt.Errorf("%w: payment method is required", ErrInvalidTransition)
	}

	s.passengers = append([]Passenger(nil), passengers...)
	s.paymentMethodRef = paymentMethodRef
	s.step = StepDetailsEntered
	s.touch(now)
	return nil
}

// AuthorizePayment records the payment authorization obtained by the commit saga.
func (s *Session) AuthorizePayment(authRef string, now time.Time) error {
	if err := s.guard(StepPaymentAuthorized); err != nil {
		return err
	}
	if strings.TrimSpace(authRef) == "" {
		return fmt.Errorf("%w: authorization reference is required", ErrInvalidTransition)
	}
	s.paymentAuthRef = authRef
	s.step = StepPaymentAuthorized
	s.touch(now)
	return nil
}

// MarkCommitted closes the session against a ledger record.
func (s *Session) MarkCommitted(reference string, now time.Time) error {
	if err := s.guard(StepCommitted); err != nil {
		return err
	}
	s.bookingReference = reference
	s.step = StepCommitted
	s.touch(now)
	return nil
}

// MarkFailed closes the session after the saga compensated.
func (s *Session) MarkFailed(reason string, now time.Time) error {
	if err := s.guard(StepFailed); err != nil {
		return err
	}
	s.failureReason = reason
	s.step = StepFailed
	s.touch(now)
	return nil
}

// Abandon ends the session on traveler cancel or idle expiry.
func (s *Session) Abandon(now time.Time) error {
	if err := s.guard(StepAbandoned); err != nil {
		return err
	}
	s.step = StepAbandoned
	s.touch(now)
	return nil
}

// NewSearch rebinds the session to another query and clears every selection.
func (s *Session) NewSearch(query offer.SearchQuery, now time.Time) error {
	if err := s.guard(StepStarted); err != nil {
		return err
	}
	q := query.Normalize()
	if err := q.Validate(); err != nil {
		return err
	}
	s.query = q
	s.flight = nil
	s.clearHotel()
	s.clearDetails()
	s.step = StepStarted
	s.touch(now)
	return nil
}

// AttachOwner binds an anonymous session to a traveler after sign-in.
func (s *Session) AttachOwner(ownerID string, now time.Time) error {
	if s.step.IsTerminal() {
		return domain.NewInvalidStateError(string(s.step), "owned")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.NewValidationError("owner ID is required")
	}
	if s.ownerID != nil && *s.ownerID != ownerID {
		return ErrOwnerMismatch
	}
	s.ownerID = &ownerID
	s.touch(now)
	return nil
}

// OwnedBy reports whether the caller may act on the session. Anonymous
// sessions are reachable by id alone.
func (s *Session) OwnedBy(ownerID string) bool {
	return s.ownerID == nil || *s.ownerID == ownerID
}

func (s *Session) guard(target Step) error {
	if !s.step.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.step, target)
	}
	return nil
}

// touch records one accepted mutation.
func (s *Session) touch(now time.Time) {
	if s.idleTimeout <= 0 {
		s.idleTimeout = DefaultIdleTimeout
	}
	now = now.UTC()
	s.version++
	s.updatedAt = now
	s.expiresAt = now.Add(s.idleTimeout)
}

func (s *Session) clearHotel() {
	s.hotel = nil
	s.hotelSkipped = false
}

func (s *Session) clearDetails() {
	s.passengers = nil
	s.paymentMethodRef = ""
}

func cloneOffer(o *offer.Offer) *offer.Offer {
	if o == nil {
		return nil
	}
	c := o.Clone()
	return &c
}
