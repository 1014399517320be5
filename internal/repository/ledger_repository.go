package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tripnest/service-booking/internal/domain/ledger"
	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
)

// BookingRecordModel is the GORM model for the booking_records table.
type BookingRecordModel struct {
	Reference           string          `gorm:"primaryKey;size:20"`
	IdempotencyKey      string          `gorm:"uniqueIndex;not null;size:200"`
	SessionID           uuid.UUID       `gorm:"type:uuid;index;not null"`
	OwnerID             *string         `gorm:"size:128;index"`
	Flight              json.RawMessage `gorm:"type:jsonb;not null"`
	Hotel               json.RawMessage `gorm:"type:jsonb"`
	Legs                json.RawMessage `gorm:"type:jsonb;not null"`
	Passengers          json.RawMessage `gorm:"type:jsonb;not null"`
	Payment             json.RawMessage `gorm:"type:jsonb;not null"`
	TotalAmount         int64           `gorm:"not null"`
	Currency            string          `gorm:"not null;size:3"`
	Status              string          `gorm:"not null;size:30;index"`
	FollowUp            bool            `gorm:"not null;default:false;index"`
	SupersedesReference *string         `gorm:"size:20"`
	CommittedAt         time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for the GORM model.
func (BookingRecordModel) TableName() string {
	return "booking_records"
}

// GormLedgerRepository is the GORM-based implementation of ledger.Repository.
// It only ever inserts.
type GormLedgerRepository struct {
	db *gorm.DB
}

var _ ledger.Repository = (*GormLedgerRepository)(nil)

// NewGormLedgerRepository creates a new GormLedgerRepository.
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Append inserts a record. A clash on reference or idempotency key returns
// ledger.ErrDuplicateReference.
func (r *GormLedgerRepository) Append(ctx context.Context, rec *ledger.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	model, err := toRecordModel(rec)
	if err != nil {
		return fmt.Errorf("failed to convert booking record to model: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateReference, rec.Reference)
		}
		return fmt.Errorf("failed to append booking record: %w", err)
	}
	return nil
}

// GetByReference retrieves a record by booking reference.
func (r *GormLedgerRepository) GetByReference(ctx context.Context, reference string) (*ledger.Record, error) {
	return r.first(ctx, "reference = ?", reference)
}

// GetByIdempotencyKey retrieves the record produced by a commit key.
func (r *GormLedgerRepository) GetByIdempotencyKey(ctx context.Context, key string) (*ledger.Record, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

// ListByOwner returns an owner's records, newest first.
func (r *GormLedgerRepository) ListByOwner(ctx context.Context, ownerID string) ([]*ledger.Record, error) {
	var models []BookingRecordModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("committed_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list owner bookings: %w", err)
	}
	return toDomainRecords(models)
}

// ListFollowUps returns records flagged for manual follow-up, newest first.
func (r *GormLedgerRepository) ListFollowUps(ctx context.Context, limit int) ([]*ledger.Record, error) {
	var models []BookingRecordModel
	if err := r.db.WithContext(ctx).
		Where("follow_up = ?", true).
		Order("committed_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list follow-up bookings: %w", err)
	}
	return toDomainRecords(models)
}

func (r *GormLedgerRepository) first(ctx context.Context, query string, arg interface{}) (*ledger.Record, error) {
	var model BookingRecordModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find booking record: %w", err)
	}
	return toDomainRecord(&model)
}

// --- Conversion Helpers ---

func toRecordModel(rec *ledger.Record) (*BookingRecordModel, error) {
	flightJSON, err := json.Marshal(rec.Flight)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flight: %w", err)
	}
	hotelJSON, err := marshalOptional(rec.Hotel)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hotel: %w", err)
	}
	legsJSON, err := json.Marshal(rec.Legs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal legs: %w", err)
	}
	passengers := rec.Passengers
	if passengers == nil {
		passengers = []session.Passenger{}
	}
	passengersJSON, err := json.Marshal(passengers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal passengers: %w", err)
	}
	paymentJSON, err := json.Marshal(rec.Payment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment: %w", err)
	}

	return &BookingRecordModel{
		Reference:           rec.Reference,
		IdempotencyKey:      rec.IdempotencyKey,
		SessionID:           rec.SessionID,
		OwnerID:             rec.OwnerID,
		Flight:              flightJSON,
		Hotel:               hotelJSON,
		Legs:                legsJSON,
		Passengers:          passengersJSON,
		Payment:             paymentJSON,
		TotalAmount:         rec.Total.Amount,
		Currency:            rec.Total.Currency,
		Status:              string(rec.Status),
		FollowUp:            rec.FollowUp,
		SupersedesReference: rec.SupersedesReference,
		CommittedAt:         rec.CommittedAt,
	}, nil
}

func toDomainRecord(m *BookingRecordModel) (*ledger.Record, error) {
	status, err := ledger.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}

	var flight offer.Offer
	if err := json.Unmarshal(m.Flight, &flight); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flight: %w", err)
	}
	hotel, err := unmarshalOffer(m.Hotel)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal hotel: %w", err)
	}
	var legs []ledger.Leg
	if err := json.Unmarshal(m.Legs, &legs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal legs: %w", err)
	}
	var passengers []session.Passenger
	if err := json.Unmarshal(m.Passengers, &passengers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal passengers: %w", err)
	}
	var payment ledger.PaymentAuthorization
	if err := json.Unmarshal(m.Payment, &payment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	return &ledger.Record{
		Reference:           m.Reference,
		IdempotencyKey:      m.IdempotencyKey,
		SessionID:           m.SessionID,
		OwnerID:             m.OwnerID,
		Flight:              flight,
		Hotel:               hotel,
		Legs:                legs,
		Passengers:          passengers,
		Payment:             payment,
		Total:               offer.Money{Amount: m.TotalAmount, Currency: m.Currency},
		Status:              status,
		FollowUp:            m.FollowUp,
		SupersedesReference: m.SupersedesReference,
		CommittedAt:         m.CommittedAt,
	}, nil
}

func toDomainRecords(models []BookingRecordModel) ([]*ledger.Record, error) {
	records := make([]*ledger.Record, len(models))
	for i := range models {
		rec, err := toDomainRecord(&models[i])
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}
