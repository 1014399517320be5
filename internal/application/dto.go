package application

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/ledger"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/inventory"
	"github.com/tripnest/service-booking/internal/search"
)

const dateLayout = "2006-01-02"

// QueryRequest is the wire form of a trip search.
type QueryRequest struct {
	Origin      string `json:"origin" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	DepartDate  string `json:"depart_date" binding:"required"`
	ReturnDate  string `json:"return_date"`
	Travelers   int    `json:"travelers" binding:"required"`
	Cabin       string `json:"cabin"`
}

// ToQuery parses and validates the request.
func (r QueryRequest) ToQuery() (offer.SearchQuery, error) {
	depart, err := time.Parse(dateLayout, strings.TrimSpace(r.DepartDate))
	if err != nil {
		return offer.SearchQuery{}, domain.NewValidationError("depart_date must be YYYY-MM-DD")
	}
	q := offer.SearchQuery{
		Origin:      r.Origin,
		Destination: r.Destination,
		DepartDate:  depart,
		Travelers:   r.Travelers,
		Cabin:       r.Cabin,
	}
	if strings.TrimSpace(r.ReturnDate) != "" {
		ret, err := time.Parse(dateLayout, strings.TrimSpace(r.ReturnDate))
		if err != nil {
			return offer.SearchQuery{}, domain.NewValidationError("return_date must be YYYY-MM-DD")
		}
		q.ReturnDate = &ret
	}
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return offer.SearchQuery{}, err
	}
	return q, nil
}

// SearchRequest starts or refreshes a search, optionally inside an existing session.
type SearchRequest struct {
	QueryRequest
	SessionID *uuid.UUID `json:"session_id"`
}

// CreateSessionRequest opens a session for a query without searching.
type CreateSessionRequest struct {
	QueryRequest
}

// TransitionRequest asks for one session transition at a known version.
type TransitionRequest struct {
	Version          int64               `json:"version" binding:"required"`
	Action           string              `json:"action" binding:"required"`
	ProviderID       string              `json:"provider_id"`
	OfferID          string              `json:"offer_id"`
	Passengers       []session.Passenger `json:"passengers"`
	PaymentMethodRef string              `json:"payment_method_ref"`
	Query            *QueryRequest       `json:"query"`
}

// QueryDTO is the response form of a search query.
type QueryDTO struct {
	Key         string  `json:"key"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DepartDate  string  `json:"depart_date"`
	ReturnDate  *string `json:"return_date,omitempty"`
	Travelers   int     `json:"travelers"`
	Cabin       string  `json:"cabin"`
}

// SessionDTO is the response representation of a booking session.
type SessionDTO struct {
	ID               uuid.UUID           `json:"id"`
	OwnerID          *string             `json:"owner_id,omitempty"`
	Step             string              `json:"step"`
	Query            QueryDTO            `json:"query"`
	Flight           *offer.Offer        `json:"flight,omitempty"`
	Hotel            *offer.Offer        `json:"hotel,omitempty"`
	HotelSkipped     bool                `json:"hotel_skipped"`
	Passengers       []session.Passenger `json:"passengers,omitempty"`
	HasPaymentMethod bool                `json:"has_payment_method"`
	Total            *offer.Money        `json:"total,omitempty"`
	BookingReference string              `json:"booking_reference,omitempty"`
	FailureReason    string              `json:"failure_reason,omitempty"`
	Version          int64               `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	ExpiresAt        time.Time           `json:"expires_at"`
}

// SearchResultDTO is the response representation of a search result.
type SearchResultDTO struct {
	QueryKey   string                           `json:"query_key"`
	Flights    []offer.Offer                    `json:"flights"`
	Hotels     []offer.Offer                    `json:"hotels"`
	Partial    bool                             `json:"partial"`
	Failures   map[string]inventory.FailureKind `json:"failures,omitempty"`
	Providers  []string                         `json:"providers"`
	Cached     bool                             `json:"cached"`
	SearchedAt time.Time                        `json:"searched_at"`
}

// SearchResponse pairs the session with its current search result.
type SearchResponse struct {
	Session SessionDTO      `json:"session"`
	Results SearchResultDTO `json:"results"`
}

// BookingDTO is the response representation of a ledger record.
type BookingDTO struct {
	Reference           string              `json:"reference"`
	SessionID           uuid.UUID           `json:"session_id"`
	Status              string              `json:"status"`
	FollowUp            bool                `json:"follow_up"`
	Flight              offer.Offer         `json:"flight"`
	Hotel               *offer.Offer        `json:"hotel,omitempty"`
	Legs                []ledger.Leg        `json:"legs"`
	Passengers          []session.Passenger `json:"passengers"`
	Total               offer.Money         `json:"total"`
	AuthorizationRef    string              `json:"authorization_ref"`
	PaymentVoided       bool                `json:"payment_voided"`
	SupersedesReference *string             `json:"supersedes_reference,omitempty"`
	CommittedAt         time.Time           `json:"committed_at"`
}

func toQueryDTO(q offer.SearchQuery) QueryDTO {
	dto := QueryDTO{
		Key:         q.Key(),
		Origin:      q.Origin,
		Destination: q.Destination,
		DepartDate:  q.DepartDate.Format(dateLayout),
		Travelers:   q.Travelers,
		Cabin:       q.Cabin,
	}
	if q.ReturnDate != nil {
		ret := q.ReturnDate.Format(dateLayout)
		dto.ReturnDate = &ret
	}
	return dto
}

func toSessionDTO(s *session.Session) SessionDTO {
	dto := SessionDTO{
		ID:               s.ID(),
		OwnerID:          s.OwnerID(),
		Step:             s.Step().String(),
		Query:            toQueryDTO(s.Query()),
		Flight:           s.FlightOffer(),
		Hotel:            s.HotelOffer(),
		HotelSkipped:     s.HotelSkipped(),
		Passengers:       s.Passengers(),
		HasPaymentMethod: s.PaymentMethodRef() != "",
		BookingReference: s.BookingReference(),
		FailureReason:    s.FailureReason(),
		Version:          s.Version(),
		CreatedAt:        s.CreatedAt(),
		UpdatedAt:        s.UpdatedAt(),
		ExpiresAt:        s.ExpiresAt(),
	}
	if s.FlightOffer() != nil {
		if total, err := s.Total(); err == nil {
			dto.Total = &total
		}
	}
	return dto
}

func toSearchResultDTO(res *search.Result, cached bool) SearchResultDTO {
	return SearchResultDTO{
		QueryKey:   res.QueryKey,
		Flights:    res.Flights,
		Hotels:     res.Hotels,
		Partial:    res.Partial(),
		Failures:   res.Failures,
		Providers:  res.Providers,
		Cached:     cached,
		SearchedAt: res.SearchedAt,
	}
}

// ToBookingDTO converts a ledger record for the API.
func ToBookingDTO(rec *ledger.Record) BookingDTO {
	return BookingDTO{
		Reference:           rec.Reference,
		SessionID:           rec.SessionID,
		Status:              string(rec.Status),
		FollowUp:            rec.FollowUp,
		Flight:              rec.Flight,
		Hotel:               rec.Hotel,
		Legs:                rec.Legs,
		Passengers:          rec.Passengers,
		Total:               rec.Total,
		AuthorizationRef:    rec.Payment.Reference,
		PaymentVoided:       rec.Payment.Voided,
		SupersedesReference: rec.SupersedesReference,
		CommittedAt:         rec.CommittedAt,
	}
}

func toBookingDTOs(records []*ledger.Record) []BookingDTO {
	out := make([]BookingDTO, len(records))
	for i, rec := range records {
		out[i] = ToBookingDTO(rec)
	}
	return out
}
