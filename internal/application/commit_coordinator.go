package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/domain/commit"
	"github.com/tripnest/service-booking/internal/domain/ledger"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/inventory"
	"github.com/tripnest/service-booking/internal/payment"
)

// ProviderLookup resolves an inventory adapter by provider id.
type ProviderLookup interface {
	Get(id string) (inventory.Adapter, error)
}

// CommitCoordinator turns a completed session into a ledger record exactly
// once per idempotency key: hold every leg, authorize payment, confirm every
// leg, append the record, close the session. Each step is journaled so a
// retry replays the outcome instead of repeating side effects.
type CommitCoordinator struct {
	sessions  session.Repository
	attempts  commit.Repository
	ledger    ledger.Repository
	providers ProviderLookup
	payments  payment.Authorizer
	events    *events
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommitCoordinator creates a new CommitCoordinator. publisher may be nil.
func NewCommitCoordinator(
	sessions session.Repository,
	attempts commit.Repository,
	ledgerRepo ledger.Repository,
	providers ProviderLookup,
	payments payment.Authorizer,
	publisher EventPublisher,
	logger *zap.Logger,
) *CommitCoordinator {
	return &CommitCoordinator{
		sessions:  sessions,
		attempts:  attempts,
		ledger:    ledgerRepo,
		providers: providers,
		payments:  payments,
		events:    newEvents(publisher, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// IdempotencyKeyFor is the key used when the caller supplies none: one commit
// per session version.
func IdempotencyKeyFor(sessionID uuid.UUID, version int64) string {
	return fmt.Sprintf("%s:v%d", sessionID, version)
}

// Commit books the session. Retrying with the same key returns the same
// record without touching providers or payment again.
func (c *CommitCoordinator) Commit(ctx context.Context, sessionID uuid.UUID, idempotencyKey, callerID string) (*ledger.Record, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.OwnedBy(callerID) {
		return nil, session.ErrOwnerMismatch
	}
	if idempotencyKey == "" {
		if sess.Step() == session.StepCommitted && sess.BookingReference() != "" {
			return c.ledger.GetByReference(ctx, sess.BookingReference())
		}
		idempotencyKey = IdempotencyKeyFor(sess.ID(), sess.Version())
	}

	prior, err := c.attempts.Get(ctx, idempotencyKey)
	switch {
	case err == nil:
		return c.replay(ctx, prior, sess.ID())
	case !errors.Is(err, commit.ErrAttemptNotFound):
		return nil, fmt.Errorf("failed to read commit attempt: %w", err)
	}

	now := c.now()
	if err := c.validate(sess, now); err != nil {
		return nil, err
	}

	attempt, created, err := c.attempts.Begin(ctx, commit.NewAttempt(idempotencyKey, sess.ID(), sess.Version(), now))
	if err != nil {
		return nil, fmt.Errorf("failed to journal commit attempt: %w", err)
	}
	if !created {
		return c.replay(ctx, attempt, sess.ID())
	}

	// The attempt is journaled; from here on the saga finishes even if the
	// caller goes away, so holds and authorizations are never orphaned.
	return c.run(context.WithoutCancel(ctx), sess, attempt)
}

// validate re-checks the session at commit time. Expired quotes win over a
// wrong step so travelers learn they must search again.
func (c *CommitCoordinator) validate(sess *session.Session, now time.Time) error {
	for _, o := range sess.Offers() {
		if o.Expired(now) {
			return fmt.Errorf("%w: %s offer %s expired at %s",
				offer.ErrQuoteExpired, o.Kind, o.Key(), o.ValidUntil.Format(time.RFC3339))
		}
	}
	if sess.Step() != session.StepDetailsEntered {
		return fmt.Errorf("%w: cannot commit from %s", session.ErrInvalidTransition, sess.Step())
	}
	if _, err := sess.Total(); err != nil {
		return err
	}
	return nil
}

func (c *CommitCoordinator) replay(ctx context.Context, a *commit.Attempt, sessionID uuid.UUID) (*ledger.Record, error) {
	if a.SessionID != sessionID {
		return nil, commit.ErrIdempotencyKeyReuse
	}
	switch a.Stage {
	case commit.StageCompleted:
		return c.ledger.GetByIdempotencyKey(ctx, a.Key)
	case commit.StageFailed:
		return nil, replayedError(a.ErrorCode, a.ErrorMessage)
	}

	// An unfinished attempt may already have its record if the final journal
	// write was lost.
	rec, found, err := settleFromLedger(ctx, c.ledger, a, c.now())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commit.ErrCommitInProgress
	}
	c.save(ctx, a)
	if a.Stage == commit.StageFailed {
		return nil, replayedError(a.ErrorCode, a.ErrorMessage)
	}
	return rec, nil
}

// settleFromLedger finishes a, in memory only, from the record its key
// produced. found is false when the ledger has no such record.
func settleFromLedger(ctx context.Context, records ledger.Repository, a *commit.Attempt, now time.Time) (*ledger.Record, bool, error) {
	rec, err := records.GetByIdempotencyKey(ctx, a.Key)
	if err != nil {
		if errors.Is(err, ledger.ErrBookingNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read booking record: %w", err)
	}
	if rec.Status == ledger.StatusFailedCompensated {
		a.Fail(ErrConfirmationFailed, rec.Reference, now)
	} else {
		a.Complete(rec.Reference, now)
	}
	return rec, true, nil
}

func (c *CommitCoordinator) run(ctx context.Context, sess *session.Session, a *commit.Attempt) (*ledger.Record, error) {
	log := c.logger.With(
		zap.String("session_id", sess.ID().String()),
		zap.String("idempotency_key", a.Key),
	)
	legs := sess.Offers()

	// Hold every leg, flight first.
	for _, o := range legs {
		hold, err := c.hold(ctx, o, sess.Query().Travelers, a.Key)
		if err != nil {
			log.Info("hold failed, releasing acquired holds",
				zap.String("provider", o.ProviderID),
				zap.Error(err),
			)
			c.releaseAll(ctx, a.Holds)
			return nil, c.fail(ctx, a, fmt.Errorf("%w: %w", ErrInventoryUnavailable, err))
		}
		a.Holds = append(a.Holds, hold)
		c.save(ctx, a)
	}
	a.Advance(commit.StageHeld, c.now())
	c.save(ctx, a)

	// Authorize the summed price.
	total, err := sess.Total()
	if err != nil {
		c.releaseAll(ctx, a.Holds)
		return nil, c.fail(ctx, a, err)
	}
	authRef, err := c.payments.Authorize(ctx, payment.AuthorizeRequest{
		Amount:           total,
		PaymentMethodRef: sess.PaymentMethodRef(),
		IdempotencyKey:   a.Key,
		SessionID:        sess.ID().String(),
	})
	if err != nil {
		log.Info("payment authorization failed", zap.Error(err))
		c.releaseAll(ctx, a.Holds)
		return nil, c.fail(ctx, a, fmt.Errorf("%w: %w", ErrPaymentDeclined, err))
	}
	a.AuthorizationRef = authRef
	a.Advance(commit.StageAuthorized, c.now())
	c.save(ctx, a)

	version := sess.Version()
	if err := sess.AuthorizePayment(authRef, c.now()); err != nil {
		c.compensate(ctx, a, a.Holds)
		return nil, c.fail(ctx, a, err)
	}
	if err := c.sessions.Update(ctx, sess, version); err != nil {
		// The traveler changed the session mid-commit; what we hold is stale.
		log.Info("session moved during commit, compensating", zap.Error(err))
		c.compensate(ctx, a, a.Holds)
		return nil, c.fail(ctx, a, err)
	}

	// Confirm every leg.
	ledgerLegs, failedHolds := c.confirmAll(ctx, legs, a.Holds, log)
	rec := &ledger.Record{
		Reference:      ledger.ReferenceFor(a.Key),
		IdempotencyKey: a.Key,
		SessionID:      sess.ID(),
		OwnerID:        sess.OwnerID(),
		Flight:         legs[0],
		Legs:           ledgerLegs,
		Passengers:     sess.Passengers(),
		Payment:        ledger.PaymentAuthorization{Reference: authRef, Amount: total},
		Total:          total,
		CommittedAt:    c.now().UTC(),
	}
	if len(legs) > 1 {
		rec.Hotel = &legs[1]
	}

	confirmed := rec.ConfirmedLegs()
	switch {
	case confirmed == len(legs):
		rec.Status = ledger.StatusConfirmed
	case confirmed > 0:
		rec.Status = ledger.StatusPartiallyConfirmed
		rec.FollowUp = true
		c.releaseAll(ctx, failedHolds)
		log.Warn("booking partially confirmed, flagged for follow-up", zap.String("reference", rec.Reference))
	default:
		rec.Status = ledger.StatusFailedCompensated
		rec.Payment.Voided = c.compensate(ctx, a, a.Holds)
	}

	rec, err = c.append(ctx, rec)
	if err != nil {
		// Providers answered but the ledger is unreachable. The attempt stays
		// at authorized so stale-attempt recovery flags it.
		log.Error("failed to append booking record", zap.Error(err))
		return nil, err
	}

	c.closeSession(ctx, sess, rec, log)

	if rec.Status == ledger.StatusFailedCompensated {
		failure := fmt.Errorf("%w: %d of %d legs failed", ErrConfirmationFailed, len(legs)-confirmed, len(legs))
		a.Fail(failure, rec.Reference, c.now())
		c.save(ctx, a)
		c.events.bookingRecorded(ctx, rec)
		return nil, failure
	}

	a.Complete(rec.Reference, c.now())
	c.save(ctx, a)
	c.events.bookingRecorded(ctx, rec)
	log.Info("booking committed",
		zap.String("reference", rec.Reference),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

func (c *CommitCoordinator) hold(ctx context.Context, o offer.Offer, travelers int, key string) (inventory.HoldToken, error) {
	adapter, err := c.providers.Get(o.ProviderID)
	if err != nil {
		return inventory.HoldToken{}, err
	}
	return adapter.Hold(ctx, inventory.HoldRequest{Offer: o, Travelers: travelers, IdempotencyKey: key})
}

// confirmAll confirms legs in order. It returns the ledger legs and the holds
// whose confirmation failed.
func (c *CommitCoordinator) confirmAll(ctx context.Context, legs []offer.Offer, holds []inventory.HoldToken, log *zap.Logger) ([]ledger.Leg, []inventory.HoldToken) {
	out := make([]ledger.Leg, len(legs))
	var failed []inventory.HoldToken
	for i, o := range legs {
		out[i] = ledger.Leg{Kind: o.Kind, ProviderID: o.ProviderID, ProviderOfferID: o.ProviderOfferID}

		conf, err := c.confirm(ctx, holds[i])
		if err != nil {
			log.Warn("confirmation failed",
				zap.String("provider", o.ProviderID),
				zap.String("offer_id", o.ProviderOfferID),
				zap.Error(err),
			)
			out[i].Status = ledger.LegFailed
			out[i].FailureKind = string(inventory.KindOf(err))
			failed = append(failed, holds[i])
			continue
		}
		out[i].Status = ledger.LegConfirmed
		out[i].ConfirmationRef = conf.Reference
	}
	return out, failed
}

func (c *CommitCoordinator) confirm(ctx context.Context, hold inventory.HoldToken) (inventory.Confirmation, error) {
	adapter, err := c.providers.Get(hold.ProviderID)
	if err != nil {
		return inventory.Confirmation{}, err
	}
	return adapter.Confirm(ctx, hold)
}

// maxReferenceAttempts bounds the references tried when another key already
// owns the derived one.
const maxReferenceAttempts = 5

// append writes the record. Losing an append race to the same key yields the
// record that won.
func (c *CommitCoordinator) append(ctx context.Context, rec *ledger.Record) (*ledger.Record, error) {
	var err error
	for n := 0; n < maxReferenceAttempts; n++ {
		rec.Reference = ledger.AlternateReference(rec.IdempotencyKey, n)
		err = c.ledger.Append(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ledger.ErrDuplicateReference) {
			return nil, fmt.Errorf("failed to append booking record: %w", err)
		}
		existing, gerr := c.ledger.GetByIdempotencyKey(ctx, rec.IdempotencyKey)
		if gerr == nil {
			return existing, nil
		}
		if !errors.Is(gerr, ledger.ErrBookingNotFound) {
			return nil, fmt.Errorf("failed to read booking record: %w", gerr)
		}
		// Another key owns this reference; try the next one.
		c.logger.Warn("booking reference collision",
			zap.String("reference", rec.Reference),
			zap.String("idempotency_key", rec.IdempotencyKey),
		)
	}
	return nil, err
}

// closeSession moves the session to its terminal step. The ledger is the
// authority: a lost race here is logged, never surfaced.
func (c *CommitCoordinator) closeSession(ctx context.Context, sess *session.Session, rec *ledger.Record, log *zap.Logger) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			fresh, err := c.sessions.Get(ctx, sess.ID())
			if err != nil {
				break
			}
			sess = fresh
		}
		version := sess.Version()
		var err error
		if rec.Status == ledger.StatusFailedCompensated {
			err = sess.MarkFailed(fmt.Sprintf("no provider confirmed booking %s", rec.Reference), c.now())
		} else {
			err = sess.MarkCommitted(rec.Reference, c.now())
		}
		if err != nil {
			log.Warn("session cannot be closed", zap.String("step", sess.Step().String()), zap.Error(err))
			return
		}
		err = c.sessions.Update(ctx, sess, version)
		if err == nil {
			return
		}
		if !errors.Is(err, session.ErrVersionConflict) {
			log.Warn("failed to close session", zap.Error(err))
			return
		}
	}
	log.Warn("session changed while closing; ledger record stands", zap.String("reference", rec.Reference))
}

// compensate releases holds and voids the authorization. It reports whether
// the void succeeded.
func (c *CommitCoordinator) compensate(ctx context.Context, a *commit.Attempt, holds []inventory.HoldToken) bool {
	c.releaseAll(ctx, holds)
	if a.AuthorizationRef == "" {
		return false
	}
	if err := c.payments.Void(ctx, a.AuthorizationRef); err != nil {
		c.logger.Error("failed to void payment authorization",
			zap.String("idempotency_key", a.Key),
			zap.String("authorization_ref", a.AuthorizationRef),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (c *CommitCoordinator) releaseAll(ctx context.Context, holds []inventory.HoldToken) {
	releaseHolds(ctx, c.providers, holds, c.logger)
}

// releaseHolds releases every hold, logging failures. Providers expire
// unreleased holds on their own, so a failed release is never fatal.
func releaseHolds(ctx context.Context, providers ProviderLookup, holds []inventory.HoldToken, logger *zap.Logger) int {
	released := 0
	for _, h := range holds {
		adapter, err := providers.Get(h.ProviderID)
		if err == nil {
			err = adapter.Release(ctx, h)
		}
		if err != nil {
			logger.Warn("failed to release hold",
				zap.String("provider", h.ProviderID),
				zap.String("token", h.Token),
				zap.Error(err),
			)
			continue
		}
		released++
	}
	return released
}

func (c *CommitCoordinator) fail(ctx context.Context, a *commit.Attempt, err error) error {
	a.Fail(err, "", c.now())
	c.save(ctx, a)
	return err
}

func (c *CommitCoordinator) save(ctx context.Context, a *commit.Attempt) {
	if err := c.attempts.Save(ctx, a); err != nil {
		c.logger.Error("failed to journal commit attempt",
			zap.String("idempotency_key", a.Key),
			zap.String("stage", string(a.Stage)),
			zap.Error(err),
		)
	}
}
