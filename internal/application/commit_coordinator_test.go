package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/commit"
	"github.com/tripnest/service-booking/internal/domain/ledger"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/repository/memory"
)

// lossyCommitStore drops journal writes for one stage.
type lossyCommitStore struct {
	*memory.CommitStore
	failStage commit.Stage
}

func (s *lossyCommitStore) Save(ctx context.Context, a *commit.Attempt) error {
	if a.Stage == s.failStage {
		return errors.New("journal unavailable")
	}
	return s.CommitStore.Save(ctx, a)
}

// lossyCoordinator commits through h's stores but loses completion writes.
func lossyCoordinator(h *harness) *CommitCoordinator {
	store := &lossyCommitStore{CommitStore: h.attempts, failStage: commit.StageCompleted}
	return NewCommitCoordinator(h.sessions, store, h.ledger, h.registry, h.payments, nil, zap.NewNop())
}

func TestCommit_ConfirmsEveryLegAndRecordsOnce(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	ctx := context.Background()

	rec, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusConfirmed, rec.Status)
	assert.False(t, rec.FollowUp)
	assert.Equal(t, ledger.ReferenceFor("checkout-1"), rec.Reference)
	assert.Equal(t, offer.Money{Amount: 150000, Currency: "USD"}, rec.Total)
	require.Len(t, rec.Legs, 2)
	for _, leg := range rec.Legs {
		assert.Equal(t, ledger.LegConfirmed, leg.Status)
		assert.NotEmpty(t, leg.ConfirmationRef)
	}
	require.NotNil(t, rec.OwnerID)
	assert.Equal(t, travelerID, *rec.OwnerID)

	authorized, ok := h.payments.Authorized(rec.Payment.Reference)
	require.True(t, ok)
	assert.Equal(t, rec.Total, authorized.Amount)

	sess := h.storedSession(t, dto.ID)
	assert.Equal(t, session.StepCommitted, sess.Step())
	assert.Equal(t, rec.Reference, sess.BookingReference())
	assert.Equal(t, rec.Payment.Reference, sess.PaymentAuthRef())

	assert.Equal(t, []string{EventBookingCommitted}, h.publisher.published())
}

func TestCommit_RetryWithSameKeyReplaysRecord(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	ctx := context.Background()

	first, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	second, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, 1, h.ledger.Len())
	assert.Len(t, h.flights.Holds(), 1)
	assert.Len(t, h.hotels.Confirms(), 1)
}

func TestCommit_ConcurrentRetriesShareOneOutcome(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, false, "pm_card_visa")

	const callers = 8
	var (
		wg   sync.WaitGroup
		refs = make([]string, callers)
		errs = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := h.commit.Commit(context.Background(), dto.ID, "checkout-1", travelerID)
			errs[i] = err
			if rec != nil {
				refs[i] = rec.Reference
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			succeeded++
			assert.Equal(t, ledger.ReferenceFor("checkout-1"), refs[i])
			continue
		}
		assert.ErrorIs(t, errs[i], commit.ErrCommitInProgress)
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, 1, h.ledger.Len())
	assert.Len(t, h.flights.Holds(), 1)
}

func TestCommit_WithoutKeyReturnsExistingBooking(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, false, "pm_card_visa")
	ctx := context.Background()

	first, err := h.commit.Commit(ctx, dto.ID, "", travelerID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReferenceFor(IdempotencyKeyFor(dto.ID, dto.Version)), first.Reference)
	require.Len(t, first.Legs, 1)

	second, err := h.commit.Commit(ctx, dto.ID, "", travelerID)
	require.NoError(t, err)
	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestCommit_ExpiredOfferFailsBeforeAnySideEffect(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	h.commit.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := h.commit.Commit(context.Background(), dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, offer.ErrQuoteExpired)

	assert.Empty(t, h.flights.Holds())
	assert.Equal(t, 0, h.ledger.Len())
	_, err = h.attempts.Get(context.Background(), "checkout-1")
	assert.ErrorIs(t, err, commit.ErrAttemptNotFound)
}

func TestCommit_HotelUnavailableReleasesFlightHold(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	h.hotels.HoldErr = errors.New("room sold out")
	ctx := context.Background()

	_, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, ErrInventoryUnavailable)

	require.Len(t, h.flights.Releases(), 1)
	assert.Empty(t, h.flights.Confirms())
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, session.StepDetailsEntered, h.storedSession(t, dto.ID).Step())

	// The recorded failure replays without calling providers again.
	_, err = h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, ErrInventoryUnavailable)
	assert.Len(t, h.hotels.Holds(), 1)
}

func TestCommit_HotelConfirmFailureIsPartiallyConfirmed(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	h.hotels.ConfirmErr = errors.New("property system down")

	rec, err := h.commit.Commit(context.Background(), dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusPartiallyConfirmed, rec.Status)
	assert.True(t, rec.FollowUp)
	assert.Equal(t, ledger.LegConfirmed, rec.Legs[0].Status)
	assert.Equal(t, ledger.LegFailed, rec.Legs[1].Status)
	assert.Equal(t, "provider_error", rec.Legs[1].FailureKind)
	assert.Len(t, h.hotels.Releases(), 1)
	assert.False(t, h.payments.Voided(rec.Payment.Reference))

	assert.Equal(t, session.StepCommitted, h.storedSession(t, dto.ID).Step())
	assert.Equal(t, []string{EventBookingPartiallyConfirmed}, h.publisher.published())

	followUps, err := h.bookings.ListFollowUps(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, followUps, 1)
	assert.Equal(t, rec.Reference, followUps[0].Reference)
}

func TestCommit_DeclinedPaymentReleasesHolds(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "decline_insufficient_funds")

	_, err := h.commit.Commit(context.Background(), dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, ErrPaymentDeclined)

	assert.Len(t, h.flights.Releases(), 1)
	assert.Len(t, h.hotels.Releases(), 1)
	assert.Empty(t, h.flights.Confirms())
	assert.Equal(t, 0, h.ledger.Len())
	assert.Equal(t, session.StepDetailsEntered, h.storedSession(t, dto.ID).Step())

	a, err := h.attempts.Get(context.Background(), "checkout-1")
	require.NoError(t, err)
	assert.Equal(t, commit.StageFailed, a.Stage)
	assert.Equal(t, ErrPaymentDeclined.Code, a.ErrorCode)
}

func TestCommit_NoConfirmationVoidsPayment(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	h.flights.ConfirmErr = errors.New("ticketing offline")
	h.hotels.ConfirmErr = errors.New("property system down")
	ctx := context.Background()

	_, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, ErrConfirmationFailed)

	rec, err := h.ledger.GetByIdempotencyKey(ctx, "checkout-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailedCompensated, rec.Status)
	assert.True(t, rec.Payment.Voided)
	assert.True(t, h.payments.Voided(rec.Payment.Reference))
	assert.Len(t, h.flights.Releases(), 1)
	assert.Len(t, h.hotels.Releases(), 1)

	sess := h.storedSession(t, dto.ID)
	assert.Equal(t, session.StepFailed, sess.Step())
	assert.Contains(t, sess.FailureReason(), rec.Reference)
	assert.Equal(t, []string{EventBookingFailed}, h.publisher.published())

	_, err = h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, ErrConfirmationFailed)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestCommit_KeyReusedForAnotherSession(t *testing.T) {
	h := newHarness(t)
	first := h.readySession(t, false, "pm_card_visa")
	_, err := h.commit.Commit(context.Background(), first.ID, "checkout-1", travelerID)
	require.NoError(t, err)

	other := h.readySession(t, false, "pm_card_visa")
	_, err = h.commit.Commit(context.Background(), other.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, commit.ErrIdempotencyKeyReuse)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestCommit_AttemptStillRunning(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, false, "pm_card_visa")
	ctx := context.Background()

	_, created, err := h.attempts.Begin(ctx, commit.NewAttempt("checkout-1", dto.ID, dto.Version, time.Now()))
	require.NoError(t, err)
	require.True(t, created)

	_, err = h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, commit.ErrCommitInProgress)
	assert.Empty(t, h.flights.Holds())
}

func TestCommit_RequiresEnteredDetails(t *testing.T) {
	h := newHarness(t)
	dto := h.searchSession(t)
	dto = h.advance(t, dto, Transition{Action: ActionSelectFlight, ProviderID: "skyline", OfferID: "F1"})

	_, err := h.commit.Commit(context.Background(), dto.ID, "checkout-1", travelerID)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.Empty(t, h.flights.Holds())
	assert.Equal(t, session.StepFlightSelected, h.storedSession(t, dto.ID).Step())
}

func TestCommit_RejectsOtherTravelers(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, false, "pm_card_visa")

	_, err := h.commit.Commit(context.Background(), dto.ID, "checkout-1", "someone-else")
	assert.ErrorIs(t, err, session.ErrOwnerMismatch)
	assert.Empty(t, h.flights.Holds())
}

func TestCommit_SurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, false, "pm_card_visa")

	ctx, cancel := context.WithCancel(context.Background())
	h.commit.payments = &cancellingAuthorizer{next: h.payments, cancel: cancel}

	rec, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, rec.Status)
	assert.Equal(t, session.StepCommitted, h.storedSession(t, dto.ID).Step())
}

func TestCommit_ReplaysRecordWhenCompletionWasNotJournaled(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, true, "pm_card_visa")
	ctx := context.Background()
	lossy := lossyCoordinator(h)

	first, err := lossy.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	stuck, err := h.attempts.Get(ctx, "checkout-1")
	require.NoError(t, err)
	require.Equal(t, commit.StageAuthorized, stuck.Stage)

	again, err := lossy.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	assert.Equal(t, first.Reference, again.Reference)

	// A healthy journal records the completion on the next replay.
	third, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	assert.Equal(t, first.Reference, third.Reference)
	settled, err := h.attempts.Get(ctx, "checkout-1")
	require.NoError(t, err)
	assert.Equal(t, commit.StageCompleted, settled.Stage)
	assert.Equal(t, first.Reference, settled.Reference)

	assert.Equal(t, 1, h.ledger.Len())
	assert.Len(t, h.flights.Holds(), 1)
}

func TestCommit_ReferenceOwnedByAnotherKeyGetsAlternate(t *testing.T) {
	h := newHarness(t)
	dto := h.readySession(t, false, "pm_card_visa")
	ctx := context.Background()

	owner := "someone-else"
	require.NoError(t, h.ledger.Append(ctx, &ledger.Record{
		Reference:      ledger.ReferenceFor("checkout-1"),
		IdempotencyKey: "unrelated-key",
		SessionID:      uuid.New(),
		OwnerID:        &owner,
		Flight:         flightFixture("F2", 120000),
		Legs: []ledger.Leg{{
			Kind: offer.KindFlight, ProviderID: "skyline", ProviderOfferID: "F2",
			Status: ledger.LegConfirmed, ConfirmationRef: "C-OLD",
		}},
		Total:       offer.Money{Amount: 120000, Currency: "USD"},
		Status:      ledger.StatusConfirmed,
		CommittedAt: time.Now(),
	}))

	rec, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlternateReference("checkout-1", 1), rec.Reference)
	assert.Equal(t, "checkout-1", rec.IdempotencyKey)
	assert.Equal(t, 2, h.ledger.Len())

	replayed, err := h.commit.Commit(ctx, dto.ID, "checkout-1", travelerID)
	require.NoError(t, err)
	assert.Equal(t, rec.Reference, replayed.Reference)
	assert.Equal(t, rec.Reference, h.storedSession(t, dto.ID).BookingReference())
}
