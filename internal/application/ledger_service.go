package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/ledger"
)

// DefaultFollowUpLimit caps the admin follow-up listing.
const DefaultFollowUpLimit = 100

// LedgerService is the read side of the booking ledger.
type LedgerService struct {
	repo   ledger.Repository
	logger *zap.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(repo ledger.Repository, logger *zap.Logger) *LedgerService {
	return &LedgerService{repo: repo, logger: logger}
}

// ListBookings returns the caller's bookings, newest first.
func (s *LedgerService) ListBookings(ctx context.Context, ownerID string) ([]BookingDTO, error) {
	if ownerID == "" {
		return nil, domain.NewValidationError("listing bookings needs a signed-in traveler")
	}
	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return toBookingDTOs(records), nil
}

// GetBooking returns one booking. Records owned by someone else read as missing.
func (s *LedgerService) GetBooking(ctx context.Context, reference, callerID string) (*BookingDTO, error) {
	rec, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !rec.OwnedBy(callerID) {
		return nil, ledger.ErrBookingNotFound
	}
	dto := ToBookingDTO(rec)
	return &dto, nil
}

// ListFollowUps returns partially confirmed bookings awaiting an operator.
func (s *LedgerService) ListFollowUps(ctx context.Context, limit int) ([]BookingDTO, error) {
	if limit <= 0 || limit > DefaultFollowUpLimit {
		limit = DefaultFollowUpLimit
	}
	records, err := s.repo.ListFollowUps(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-ups: %w", err)
	}
	return toBookingDTOs(records), nil
}

// NoteFollowUp raises an operator alert for a partially confirmed booking.
// Unknown references and records no longer flagged are ignored.
func (s *LedgerService) NoteFollowUp(ctx context.Context, reference string) error {
	rec, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ledger.ErrBookingNotFound) {
			s.logger.Warn("follow-up event for unknown booking", zap.String("reference", reference))
			return nil
		}
		return fmt.Errorf("failed to load booking %s: %w", reference, err)
	}
	if !rec.FollowUp {
		return nil
	}

	var failed []string
	for _, leg := range rec.Legs {
		if leg.Status != ledger.LegConfirmed {
			failed = append(failed, fmt.Sprintf("%s:%s/%s", leg.Kind, leg.ProviderID, leg.ProviderOfferID))
		}
	}
	s.logger.Error("booking needs operator follow-up",
		zap.String("reference", rec.Reference),
		zap.String("status", string(rec.Status)),
		zap.Strings("unconfirmed_legs", failed),
		zap.String("authorization_ref", rec.Payment.Reference),
		zap.Int64("authorized_amount", rec.Payment.Amount.Amount),
		zap.String("currency", rec.Payment.Amount.Currency),
	)
	return nil
}
