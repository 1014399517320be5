package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/middleware"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/inventory"
	"github.com/tripnest/service-booking/internal/inventory/inventorytest"
	"github.com/tripnest/service-booking/internal/payment"
	"github.com/tripnest/service-booking/internal/quotecache"
	"github.com/tripnest/service-booking/internal/repository/memory"
	"github.com/tripnest/service-booking/internal/search"
)

const (
	traveler = "traveler-1"
	operator = "ops-1"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	router *gin.Engine
	hotels *inventorytest.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	validUntil := time.Now().Add(time.Hour).UTC()
	flights := inventorytest.NewFake("skyline", offer.KindFlight, offer.Offer{
		ProviderID:      "skyline",
		ProviderOfferID: "F1",
		Kind:            offer.KindFlight,
		Price:           offer.Money{Amount: 90000, Currency: "USD"},
		ValidUntil:      validUntil,
		Flight:          &offer.FlightDetails{Origin: "JFK", Destination: "CAI", Duration: 11 * time.Hour},
	})
	hotels := inventorytest.NewFake("staywell", offer.KindHotel, offer.Offer{
		ProviderID:      "staywell",
		ProviderOfferID: "H1",
		Kind:            offer.KindHotel,
		Price:           offer.Money{Amount: 60000, Currency: "USD"},
		ValidUntil:      validUntil,
		Hotel:           &offer.HotelDetails{PropertyName: "Nile View", City: "CAI", Nights: 7},
	})
	adapters := []inventory.Adapter{flights, hotels}
	registry, err := inventory.NewRegistry(adapters...)
	require.NoError(t, err)

	sessions := memory.NewSessionStore()
	ledgerStore := memory.NewLedgerStore()
	cache := quotecache.New(time.Minute, logger)

	searchService := application.NewSearchService(search.NewAggregator(adapters, logger), cache, sessions, time.Second, time.Hour, logger)
	sessionService := application.NewSessionService(sessions, cache, nil, nil, time.Hour, logger)
	coordinator := application.NewCommitCoordinator(sessions, memory.NewCommitStore(), ledgerStore, registry, payment.NewSandbox(), nil, logger)
	ledgerService := application.NewLedgerService(ledgerStore, logger)

	router := gin.New()
	router.Use(middleware.IdentityMiddleware())
	api := router.Group("")
	NewSearchHandler(searchService).RegisterRoutes(api)
	NewSessionHandler(sessionService, coordinator).RegisterRoutes(api)
	NewBookingHandler(ledgerService).RegisterRoutes(api)
	NewAdminBookingHandler(ledgerService, []string{operator}).RegisterRoutes(api)

	return &testServer{router: router, hotels: hotels}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

var tripQuery = map[string]interface{}{
	"origin":      "JFK",
	"destination": "CAI",
	"depart_date": "2026-03-10",
	"return_date": "2026-03-17",
	"travelers":   1,
}

// readySession searches and advances a session to details_entered over HTTP.
func (s *testServer) readySession(t *testing.T, paymentMethod string) application.SessionDTO {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/search", traveler, tripQuery)
	require.Equal(t, http.StatusOK, code)
	sess := decode[application.SearchResponse](t, env).Session

	steps := []map[string]interface{}{
		{"action": "select_flight", "provider_id": "skyline", "offer_id": "F1"},
		{"action": "select_hotel", "provider_id": "staywell", "offer_id": "H1"},
		{"action": "enter_details", "payment_method_ref": paymentMethod, "passengers": []map[string]string{
			{"first_name": "Ada", "last_name": "Lovelace", "date_of_birth": "1990-12-10"},
		}},
	}
	for _, step := range steps {
		step["version"] = sess.Version
		code, env = s.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/transitions", traveler, step)
		require.Equal(t, http.StatusOK, code, env.Error)
		sess = decode[application.SessionDTO](t, env)
	}
	require.Equal(t, "details_entered", sess.Step)
	return sess
}

func TestBookingFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	sess := s.readySession(t, "pm_card_visa")
	commitPath := "/api/v1/sessions/" + sess.ID.String() + "/commit"

	code, env := s.do(t, http.MethodPost, commitPath, traveler, nil, HeaderIdempotencyKey, "checkout-1")
	require.Equal(t, http.StatusCreated, code, env.Error)
	booking := decode[application.BookingDTO](t, env)
	assert.Equal(t, "confirmed", booking.Status)
	assert.Equal(t, int64(150000), booking.Total.Amount)

	code, env = s.do(t, http.MethodPost, commitPath, traveler, nil, HeaderIdempotencyKey, "checkout-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, booking.Reference, decode[application.BookingDTO](t, env).Reference)

	code, env = s.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID.String(), traveler, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, booking.Reference, decode[application.SessionDTO](t, env).BookingReference)

	code, env = s.do(t, http.MethodGet, "/api/v1/bookings", traveler, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]application.BookingDTO](t, env), 1)

	code, _ = s.do(t, http.MethodGet, "/api/v1/bookings/"+booking.Reference, traveler, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/api/v1/bookings/"+booking.Reference, "someone-else", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "booking_not_found", env.Error.Code)
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions", "", tripQuery)
	require.Equal(t, http.StatusCreated, code)
	sess := decode[application.SessionDTO](t, env)
	assert.Equal(t, "started", sess.Step)
	assert.Equal(t, int64(1), sess.Version)
	assert.Nil(t, sess.OwnerID)

	code, env = s.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]interface{}{
		"origin": "JFK", "destination": "JFK", "depart_date": "2026-03-10", "travelers": 1,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	sess := s.readySession(t, "decline_card")
	transitions := "/api/v1/sessions/" + sess.ID.String() + "/transitions"

	t.Run("stale version", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, transitions, traveler, map[string]interface{}{
			"version": sess.Version - 1, "action": "skip_hotel",
		})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "version_conflict", env.Error.Code)
	})

	t.Run("commit-only action", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, transitions, traveler, map[string]interface{}{
			"version": sess.Version, "action": "authorize_payment",
		})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "invalid_transition", env.Error.Code)
	})

	t.Run("foreign session", func(t *testing.T) {
		code, _ := s.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID.String(), "someone-else", nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("unknown session", func(t *testing.T) {
		code, env := s.do(t, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), traveler, nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "session_not_found", env.Error.Code)
	})

	t.Run("malformed session id", func(t *testing.T) {
		code, _ := s.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", traveler, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("declined payment", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/commit", traveler, nil,
			HeaderIdempotencyKey, "checkout-1")
		assert.Equal(t, http.StatusPaymentRequired, code)
		assert.Equal(t, "payment_declined", env.Error.Code)
	})
}

func TestCommit_HotelUnavailableIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t)
	sess := s.readySession(t, "pm_card_visa")
	s.hotels.HoldErr = errors.New("sold out")

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/commit", traveler, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "inventory_unavailable", env.Error.Code)
}

func TestBookingsRequireIdentity(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Error.Code)
}

func TestAdminFollowUps(t *testing.T) {
	s := newTestServer(t)
	sess := s.readySession(t, "pm_card_visa")
	s.hotels.ConfirmErr = errors.New("property system down")

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/commit", traveler, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "partially_confirmed", decode[application.BookingDTO](t, env).Status)

	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/bookings/follow-ups", traveler, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/bookings/follow-ups?limit=10", operator, nil)
	require.Equal(t, http.StatusOK, code)
	followUps := decode[[]application.BookingDTO](t, env)
	require.Len(t, followUps, 1)
	assert.True(t, followUps[0].FollowUp)
}
