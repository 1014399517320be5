package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
	"github.com/tripnest/service-booking/internal/search"
)

// Action names a traveler-driven session transition.
type Action string

const (
	ActionSelectFlight Action = "select_flight"
	ActionSelectHotel  Action = "select_hotel"
	ActionSkipHotel    Action = "skip_hotel"
	ActionEnterDetails Action = "enter_details"
	ActionNewSearch    Action = "new_search"
	ActionCancel       Action = "cancel"
	ActionAttachOwner  Action = "attach_owner"

	// Performed only by the commit flow.
	actionAuthorizePayment Action = "authorize_payment"
	actionMarkCommitted    Action = "mark_committed"
	actionMarkFailed       Action = "mark_failed"
)

// Transition is one requested session change.
type Transition struct {
	Action           Action
	ProviderID       string
	OfferID          string
	Passengers       []session.Passenger
	PaymentMethodRef string
	Query            *offer.SearchQuery
}

// TransitionFromRequest converts the wire request into a Transition.
func TransitionFromRequest(req TransitionRequest) (Transition, error) {
	t := Transition{
		Action:           Action(strings.ToLower(strings.TrimSpace(req.Action))),
		ProviderID:       req.ProviderID,
		OfferID:          req.OfferID,
		Passengers:       req.Passengers,
		PaymentMethodRef: req.PaymentMethodRef,
	}
	if req.Query != nil {
		q, err := req.Query.ToQuery()
		if err != nil {
			return Transition{}, err
		}
		t.Query = &q
	}
	return t, nil
}

// QuoteLookup reads cached search results without triggering a search.
type QuoteLookup interface {
	Lookup(ctx context.Context, key string) (*search.Result, bool)
}

// SessionService is the application service for booking session use cases.
type SessionService struct {
	repo        session.Repository
	quotes      QuoteLookup
	details     *DetailsValidator
	events      *events
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionService creates a new SessionService. publisher may be nil.
func NewSessionService(
	repo session.Repository,
	quotes QuoteLookup,
	details *DetailsValidator,
	publisher EventPublisher,
	idleTimeout time.Duration,
	logger *zap.Logger,
) *SessionService {
	if details == nil {
		details = NewDetailsValidator()
	}
	return &SessionService{
		repo:        repo,
		quotes:      quotes,
		details:     details,
		events:      newEvents(publisher, logger),
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Create opens a session in the started step.
func (s *SessionService) Create(ctx context.Context, q offer.SearchQuery, ownerID string) (*SessionDTO, error) {
	sess, err := session.NewSession(q, ownerPtr(ownerID), s.idleTimeout, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session created", zap.String("session_id", sess.ID().String()))

	dto := toSessionDTO(sess)
	return &dto, nil
}

// Get returns the session. An idle session is moved to abandoned on read.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID, callerID string) (*SessionDTO, error) {
	sess, err := s.load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if sess.IsIdleExpired(s.now()) {
		s.expire(ctx, sess)
	}
	dto := toSessionDTO(sess)
	return &dto, nil
}

// Advance applies one transition if expectedVersion is still current. Rejected
// transitions leave the stored session untouched.
func (s *SessionService) Advance(ctx context.Context, id uuid.UUID, expectedVersion int64, t Transition, callerID string) (*SessionDTO, error) {
	sess, err := s.load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if sess.Version() != expectedVersion {
		return nil, fmt.Errorf("%w: have version %d, current is %d", session.ErrVersionConflict, expectedVersion, sess.Version())
	}

	now := s.now()
	if sess.IsIdleExpired(now) {
		s.expire(ctx, sess)
		return nil, session.ErrSessionExpired
	}

	lastStep := sess.Step().String()
	if err := s.apply(ctx, sess, t, callerID, now); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sess, expectedVersion); err != nil {
		return nil, err
	}

	if t.Action == ActionCancel {
		s.events.sessionAbandoned(ctx, sess.ID(), sess.OwnerID(), lastStep, "cancelled")
	}
	s.logger.Debug("session advanced",
		zap.String("session_id", id.String()),
		zap.String("action", string(t.Action)),
		zap.Int64("version", sess.Version()),
	)

	dto := toSessionDTO(sess)
	return &dto, nil
}

func (s *SessionService) apply(ctx context.Context, sess *session.Session, t Transition, callerID string, now time.Time) error {
	switch t.Action {
	case ActionSelectFlight, ActionSelectHotel:
		o, err := s.resolveOffer(ctx, sess, t.ProviderID, t.OfferID)
		if err != nil {
			return err
		}
		if t.Action == ActionSelectFlight {
			return sess.SelectFlight(o, now)
		}
		return sess.SelectHotel(o, now)
	case ActionSkipHotel:
		return sess.SkipHotel(now)
	case ActionEnterDetails:
		if err := s.details.Validate(t.Passengers); err != nil {
			return err
		}
		return sess.EnterDetails(t.Passengers, t.PaymentMethodRef, now)
	case ActionNewSearch:
		if t.Query == nil {
			return domain.NewValidationError("new_search needs a query")
		}
		return sess.NewSearch(*t.Query, now)
	case ActionCancel:
		return sess.Abandon(now)
	case ActionAttachOwner:
		if callerID == "" {
			return domain.NewValidationError("attach_owner needs a signed-in traveler")
		}
		return sess.AttachOwner(callerID, now)
	case actionAuthorizePayment, actionMarkCommitted, actionMarkFailed:
		return fmt.Errorf("%w: %s is performed by the commit flow", session.ErrInvalidTransition, t.Action)
	default:
		return domain.NewValidationError(fmt.Sprintf("unknown action: %s", t.Action))
	}
}

// resolveOffer finds the quoted offer server-side so clients never supply prices.
func (s *SessionService) resolveOffer(ctx context.Context, sess *session.Session, providerID, offerID string) (offer.Offer, error) {
	if providerID == "" || offerID == "" {
		return offer.Offer{}, domain.NewValidationError("provider_id and offer_id are required")
	}
	res, ok := s.quotes.Lookup(ctx, sess.Query().Key())
	if !ok {
		return offer.Offer{}, fmt.Errorf("%w: search results have aged out; search again", offer.ErrQuoteExpired)
	}
	o, ok := res.Find(providerID, offerID)
	if !ok {
		return offer.Offer{}, fmt.Errorf("%w: offer %s/%s is not in the current results", offer.ErrQuoteExpired, providerID, offerID)
	}
	return o, nil
}

func (s *SessionService) load(ctx context.Context, id uuid.UUID, callerID string) (*session.Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.OwnedBy(callerID) {
		return nil, session.ErrOwnerMismatch
	}
	return sess, nil
}

// expire persists the abandoned step for an idle session. Losing the race to
// another writer is fine; that writer saw the same expiry.
func (s *SessionService) expire(ctx context.Context, sess *session.Session) {
	version := sess.Version()
	lastStep := sess.Step().String()
	if err := sess.Abandon(s.now()); err != nil {
		return
	}
	if err := s.repo.Update(ctx, sess, version); err != nil {
		if !errors.Is(err, session.ErrVersionConflict) {
			s.logger.Warn("failed to expire session", zap.String("session_id", sess.ID().String()), zap.Error(err))
		}
		return
	}
	s.events.sessionAbandoned(ctx, sess.ID(), sess.OwnerID(), lastStep, "idle")
}

func ownerPtr(ownerID string) *string {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil
	}
	return &ownerID
}
