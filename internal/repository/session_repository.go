package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/domain/session"
)

// SessionModel is the GORM model for the booking_sessions table.
type SessionModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OwnerID            *string         `gorm:"size:128;index"`
	Step               string          `gorm:"not null;size:30;index"`
	QueryKey           string          `gorm:"not null;size:80"`
	Query              json.RawMessage `gorm:"type:jsonb;not null"`
	Flight             json.RawMessage `gorm:"type:jsonb"`
	Hotel              json.RawMessage `gorm:"type:jsonb"`
	HotelSkipped       bool            `gorm:"not null;default:false"`
	Passengers         json.RawMessage `gorm:"type:jsonb"`
	PaymentMethodRef   string          `gorm:"size:128"`
	PaymentAuthRef     string          `gorm:"size:128"`
	BookingReference   string          `gorm:"size:20"`
	FailureReason      string          `gorm:"size:500"`
	IdleTimeoutSeconds int64           `gorm:"not null"`
	Version            int64           `gorm:"not null;default:1"`
	CreatedAt          time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"not null;index"`
	ExpiresAt          time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for the GORM model.
func (SessionModel) TableName() string {
	return "booking_sessions"
}

// GormSessionRepository is the GORM-based implementation of session.Repository.
type GormSessionRepository struct {
	db *gorm.DB
}

var _ session.Repository = (*GormSessionRepository)(nil)

// NewGormSessionRepository creates a new GormSessionRepository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create persists a new session.
func (r *GormSessionRepository) Create(ctx context.Context, s *session.Session) error {
	model, err := toSessionModel(s)
	if err != nil {
		return fmt.Errorf("failed to convert session to model: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session by its unique identifier.
func (r *GormSessionRepository) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	var model SessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return toDomainSession(&model)
}

// Update writes s only when the stored version equals expectedVersion.
func (r *GormSessionRepository) Update(ctx context.Context, s *session.Session, expectedVersion int64) error {
	model, err := toSessionModel(s)
	if err != nil {
		return fmt.Errorf("failed to convert session to model: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"owner_id":             model.OwnerID,
			"step":                 model.Step,
			"query_key":            model.QueryKey,
			"query":                model.Query,
			"flight":               model.Flight,
			"hotel":                model.Hotel,
			"hotel_skipped":        model.HotelSkipped,
			"passengers":           model.Passengers,
			"payment_method_ref":   model.PaymentMethodRef,
			"payment_auth_ref":     model.PaymentAuthRef,
			"booking_reference":    model.BookingReference,
			"failure_reason":       model.FailureReason,
			"idle_timeout_seconds": model.IdleTimeoutSeconds,
			"version":              model.Version,
			"updated_at":           model.UpdatedAt,
			"expires_at":           model.ExpiresAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&SessionModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if count == 0 {
		return session.ErrSessionNotFound
	}
	return session.ErrVersionConflict
}

// ListExpired returns non-terminal sessions whose idle window ended before now.
func (r *GormSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*session.Session, error) {
	var models []SessionModel
	if err := r.db.WithContext(ctx).
		Where("step NOT IN ? AND expires_at < ?", stepNames(session.TerminalSteps()), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	sessions := make([]*session.Session, len(models))
	for i := range models {
		s, err := toDomainSession(&models[i])
		if err != nil {
			return nil, err
		}
		sessions[i] = s
	}
	return sessions, nil
}

// DeleteTerminalBefore removes terminal sessions last touched before cutoff.
func (r *GormSessionRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("step IN ? AND updated_at < ?", stepNames(session.TerminalSteps()), cutoff).
		Delete(&SessionModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete terminal sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func stepNames(steps []session.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}

// --- Conversion Helpers ---

func toSessionModel(s *session.Session) (*SessionModel, error) {
	snap := s.Snapshot()

	queryJSON, err := json.Marshal(snap.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	flightJSON, err := marshalOptional(snap.Flight)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flight: %w", err)
	}
	hotelJSON, err := marshalOptional(snap.Hotel)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hotel: %w", err)
	}
	var passengersJSON json.RawMessage
	if len(snap.Passengers) > 0 {
		if passengersJSON, err = json.Marshal(snap.Passengers); err != nil {
			return nil, fmt.Errorf("failed to marshal passengers: %w", err)
		}
	}

	return &SessionModel{
		ID:                 snap.ID,
		OwnerID:            snap.OwnerID,
		Step:               string(snap.Step),
		QueryKey:           snap.Query.Key(),
		Query:              queryJSON,
		Flight:             flightJSON,
		Hotel:              hotelJSON,
		HotelSkipped:       snap.HotelSkipped,
		Passengers:         passengersJSON,
		PaymentMethodRef:   snap.PaymentMethodRef,
		PaymentAuthRef:     snap.PaymentAuthRef,
		BookingReference:   snap.BookingReference,
		FailureReason:      snap.FailureReason,
		IdleTimeoutSeconds: int64(snap.IdleTimeout / time.Second),
		Version:            snap.Version,
		CreatedAt:          snap.CreatedAt,
		UpdatedAt:          snap.UpdatedAt,
		ExpiresAt:          snap.ExpiresAt,
	}, nil
}

func toDomainSession(m *SessionModel) (*session.Session, error) {
	step, err := session.ParseStep(m.Step)
	if err != nil {
		return nil, err
	}

	var query offer.SearchQuery
	if err := json.Unmarshal(m.Query, &query); err != nil {
		return nil, fmt.Errorf("failed to unmarshal query: %w", err)
	}
	flight, err := unmarshalOffer(m.Flight)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flight: %w", err)
	}
	hotel, err := unmarshalOffer(m.Hotel)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal hotel: %w", err)
	}
	var passengers []session.Passenger
	if len(m.Passengers) > 0 {
		if err := json.Unmarshal(m.Passengers, &passengers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal passengers: %w", err)
		}
	}

	return session.ReconstructSession(session.Snapshot{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Step:             step,
		Query:            query,
		Flight:           flight,
		Hotel:            hotel,
		HotelSkipped:     m.HotelSkipped,
		Passengers:       passengers,
		PaymentMethodRef: m.PaymentMethodRef,
		PaymentAuthRef:   m.PaymentAuthRef,
		BookingReference: m.BookingReference,
		FailureReason:    m.FailureReason,
		IdleTimeout:      time.Duration(m.IdleTimeoutSeconds) * time.Second,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		ExpiresAt:        m.ExpiresAt,
	}), nil
}

func marshalOptional(o *offer.Offer) (json.RawMessage, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func unmarshalOffer(data json.RawMessage) (*offer.Offer, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var o offer.Offer
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
