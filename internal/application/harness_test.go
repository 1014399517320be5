package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/common/kafka"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/inventory"
	"github.com/tripnest/service-booking/internal/inventory/inventorytest"
	"github.com/tripnest/service-booking/internal/payment"
	"github.com/tripnest/service-booking/internal/quotecache"
	"github.com/tripnest/service-booking/internal/repository/memory"
	"github.com/tripnest/service-booking/internal/search"
)

const travelerID = "traveler-1"

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

// published returns the event types sent so far, in order.
func (m *mockPublisher) published() []string {
	var out []string
	for _, call := range m.Calls {
		if call.Method == "PublishEvent" {
			out = append(out, call.Arguments.Get(2).(kafka.CloudEvent).Type)
		}
	}
	return out
}

type harness struct {
	sessions  *memory.SessionStore
	ledger    *memory.LedgerStore
	attempts  *memory.CommitStore
	flights   *inventorytest.Fake
	hotels    *inventorytest.Fake
	registry  *inventory.Registry
	payments  *payment.Sandbox
	cache     *quotecache.Cache
	publisher *mockPublisher

	search   *SearchService
	sessionS *SessionService
	commit   *CommitCoordinator
	bookings *LedgerService
}

func flightFixture(id string, amount int64) offer.Offer {
	return offer.Offer{
		ProviderID:      "skyline",
		ProviderOfferID: id,
		Kind:            offer.KindFlight,
		Price:           offer.Money{Amount: amount, Currency: "USD"},
		ValidUntil:      time.Now().Add(time.Hour).UTC(),
		Flight:          &offer.FlightDetails{Origin: "JFK", Destination: "CAI", Stops: 0, Duration: 11 * time.Hour},
	}
}

func hotelFixture(id string, amount int64) offer.Offer {
	return offer.Offer{
		ProviderID:      "staywell",
		ProviderOfferID: id,
		Kind:            offer.KindHotel,
		Price:           offer.Money{Amount: amount, Currency: "USD"},
		ValidUntil:      time.Now().Add(time.Hour).UTC(),
		Hotel:           &offer.HotelDetails{PropertyName: "Nile View", City: "CAI", RoomType: "double", Nights: 7},
	}
}

func testQuery() offer.SearchQuery {
	ret := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	return offer.SearchQuery{
		Origin:      "jfk",
		Destination: "cai",
		DepartDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ReturnDate:  &ret,
		Travelers:   1,
	}
}

func testPassengers() []session.Passenger {
	return []session.Passenger{{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: "1990-12-10",
		Email:       "ada@example.com",
	}}
}

func newHarness(t *testing.T, extra ...inventory.Adapter) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		sessions:  memory.NewSessionStore(),
		ledger:    memory.NewLedgerStore(),
		attempts:  memory.NewCommitStore(),
		flights:   inventorytest.NewFake("skyline", offer.KindFlight, flightFixture("F1", 90000), flightFixture("F2", 120000)),
		hotels:    inventorytest.NewFake("staywell", offer.KindHotel, hotelFixture("H1", 60000)),
		payments:  payment.NewSandbox(),
		cache:     quotecache.New(time.Minute, logger),
		publisher: &mockPublisher{},
	}
	h.publisher.On("PublishEvent", mock.Anything, TopicBookingEvents, mock.Anything).Return(nil).Maybe()

	adapters := append([]inventory.Adapter{h.flights, h.hotels}, extra...)
	registry, err := inventory.NewRegistry(adapters...)
	require.NoError(t, err)
	h.registry = registry

	aggregator := search.NewAggregator(adapters, logger)
	h.search = NewSearchService(aggregator, h.cache, h.sessions, 200*time.Millisecond, time.Hour, logger)
	h.sessionS = NewSessionService(h.sessions, h.cache, NewDetailsValidator(), h.publisher, time.Hour, logger)
	h.commit = NewCommitCoordinator(h.sessions, h.attempts, h.ledger, registry, h.payments, h.publisher, logger)
	h.bookings = NewLedgerService(h.ledger, logger)
	return h
}

// advance applies a transition at the session's current version.
func (h *harness) advance(t *testing.T, dto *SessionDTO, tr Transition) *SessionDTO {
	t.Helper()
	next, err := h.sessionS.Advance(context.Background(), dto.ID, dto.Version, tr, travelerID)
	require.NoError(t, err)
	return next
}

// searchSession opens a session through a search.
func (h *harness) searchSession(t *testing.T) *SessionDTO {
	t.Helper()
	resp, err := h.search.Search(context.Background(), nil, testQuery(), travelerID)
	require.NoError(t, err)
	return &resp.Session
}

// readySession walks a session to details_entered.
func (h *harness) readySession(t *testing.T, withHotel bool, paymentMethod string) *SessionDTO {
	t.Helper()
	dto := h.searchSession(t)
	dto = h.advance(t, dto, Transition{Action: ActionSelectFlight, ProviderID: "skyline", OfferID: "F1"})
	if withHotel {
		dto = h.advance(t, dto, Transition{Action: ActionSelectHotel, ProviderID: "staywell", OfferID: "H1"})
	} else {
		dto = h.advance(t, dto, Transition{Action: ActionSkipHotel})
	}
	return h.advance(t, dto, Transition{
		Action:           ActionEnterDetails,
		Passengers:       testPassengers(),
		PaymentMethodRef: paymentMethod,
	})
}

func (h *harness) storedSession(t *testing.T, id uuid.UUID) *session.Session {
	t.Helper()
	sess, err := h.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return sess
}

// cancellingAuthorizer cancels the caller's context as soon as payment is authorized.
type cancellingAuthorizer struct {
	next   payment.Authorizer
	cancel context.CancelFunc
}

func (a *cancellingAuthorizer) Authorize(ctx context.Context, req payment.AuthorizeRequest) (string, error) {
	ref, err := a.next.Authorize(ctx, req)
	a.cancel()
	return ref, err
}

func (a *cancellingAuthorizer) Void(ctx context.Context, ref string) error {
	return a.next.Void(ctx, ref)
}
