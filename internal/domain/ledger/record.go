// Package ledger holds the append-only record of committed bookings.
package ledger

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
)

const referenceChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// referenceLen characters of a 32 letter alphabet give 60 bits.
const referenceLen = 12

// Status is the outcome recorded for a booking.
type Status string

const (
	StatusConfirmed          Status = "confirmed"
	StatusPartiallyConfirmed Status = "partially_confirmed"
	StatusFailedCompensated  Status = "failed_compensated"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusPartiallyConfirmed, StatusFailedCompensated:
		return true
	}
	return false
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", domain.NewValidationError(fmt.Sprintf("invalid booking status: %s", s))
	}
	return st, nil
}

// LegStatus is the provider outcome of one leg.
type LegStatus string

const (
	LegConfirmed LegStatus = "confirmed"
	LegFailed    LegStatus = "failed"
	LegReleased  LegStatus = "released"
)

// Leg is the per-provider result of a commit.
type Leg struct {
	Kind            offer.Kind `json:"kind"`
	ProviderID      string     `json:"provider_id"`
	ProviderOfferID string     `json:"provider_offer_id"`
	Status          LegStatus  `json:"status"`
	ConfirmationRef string     `json:"confirmation_ref,omitempty"`
	FailureKind     string     `json:"failure_kind,omitempty"`
}

// PaymentAuthorization is the payment state captured with the record.
type PaymentAuthorization struct {
	Reference string      `json:"reference"`
	Amount    offer.Money `json:"amount"`
	Voided    bool        `json:"voided"`
}

// Record is an immutable booking entry. Corrections are new records that
// point at the one they replace through SupersedesReference.
type Record struct {
	Reference           string
	IdempotencyKey      string
	SessionID           uuid.UUID
	OwnerID             *string
	Flight              offer.Offer
	Hotel               *offer.Offer
	Legs                []Leg
	Passengers          []session.Passenger
	Payment             PaymentAuthorization
	Total               offer.Money
	Status              Status
	FollowUp            bool
	SupersedesReference *string
	CommittedAt         time.Time
}

// ReferenceFor derives the booking reference from an idempotency key, so a
// retried commit always lands on the same reference.
func ReferenceFor(idempotencyKey string) string {
	return AlternateReference(idempotencyKey, 0)
}

// AlternateReference is the n-th candidate reference for a key. Candidate 0
// is ReferenceFor; later ones are used only when another key owns it.
func AlternateReference(idempotencyKey string, n int) string {
	seed := idempotencyKey
	if n > 0 {
		seed = fmt.Sprintf("%s#%d", idempotencyKey, n)
	}
	sum := sha256.Sum256([]byte(seed))
	out := make([]byte, referenceLen)
	for i := range out {
		out[i] = referenceChars[int(sum[i])%len(referenceChars)]
	}
	return "TRV-" + string(out)
}

// Validate checks the record before it is appended.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Reference) == "" {
		return domain.NewValidationError("booking reference is required")
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return domain.NewValidationError("idempotency key is required")
	}
	if r.SessionID == uuid.Nil {
		return domain.NewValidationError("session ID is required")
	}
	if !r.Status.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("invalid booking status: %s", r.Status))
	}
	if len(r.Legs) == 0 {
		return domain.NewValidationError("a booking needs at least one leg")
	}
	if r.CommittedAt.IsZero() {
		return domain.NewValidationError("commit time is required")
	}
	return nil
}

// ConfirmedLegs counts legs the providers confirmed.
func (r *Record) ConfirmedLegs() int {
	n := 0
	for _, l := range r.Legs {
		if l.Status == LegConfirmed {
			n++
		}
	}
	return n
}

// OwnedBy reports whether the record belongs to ownerID.
func (r *Record) OwnedBy(ownerID string) bool {
	return r.OwnerID != nil && *r.OwnerID == ownerID
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Flight = r.Flight.Clone()
	if r.Hotel != nil {
		h := r.Hotel.Clone()
		c.Hotel = &h
	}
	if r.OwnerID != nil {
		id := *r.OwnerID
		c.OwnerID = &id
	}
	if r.SupersedesReference != nil {
		ref := *r.SupersedesReference
		c.SupersedesReference = &ref
	}
	c.Legs = append([]Leg(nil), r.Legs...)
	c.Passengers = append([]session.Passenger(nil), r.Passengers...)
	return &c
}
