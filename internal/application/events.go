package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/common/kafka"
	"github.com/tripnest/service-booking/internal/domain/ledger"
	"github.com/tripnest/service-booking/internal/domain/offer"
)

// Event topics and types published by the booking service.
const (
	TopicBookingEvents = "booking.events"

	EventBookingCommitted          = "booking.committed"
	EventBookingPartiallyConfirmed = "booking.partially_confirmed"
	EventBookingFailed             = "booking.failed"
	EventSessionAbandoned          = "session.abandoned"

	eventSource = "service-booking"
)

// EventPublisher writes CloudEvents to a topic. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// BookingEvent is the payload of booking.* events.
type BookingEvent struct {
	Reference  string       `json:"reference"`
	SessionID  uuid.UUID    `json:"session_id"`
	OwnerID    *string      `json:"owner_id,omitempty"`
	Status     string       `json:"status"`
	FollowUp   bool         `json:"follow_up"`
	Total      offer.Money  `json:"total"`
	Legs       []ledger.Leg `json:"legs"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// SessionAbandonedEvent is the payload of session.abandoned.
type SessionAbandonedEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	OwnerID    *string   `json:"owner_id,omitempty"`
	LastStep   string    `json:"last_step"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// events publishes best effort: failures are logged and never fail the caller.
type events struct {
	publisher EventPublisher
	topic     string
	logger    *zap.Logger
}

func newEvents(publisher EventPublisher, logger *zap.Logger) *events {
	return &events{publisher: publisher, topic: TopicBookingEvents, logger: logger}
}

func (e *events) bookingRecorded(ctx context.Context, rec *ledger.Record) {
	eventType := EventBookingCommitted
	switch rec.Status {
	case ledger.StatusPartiallyConfirmed:
		eventType = EventBookingPartiallyConfirmed
	case ledger.StatusFailedCompensated:
		eventType = EventBookingFailed
	}
	e.publish(ctx, eventType, rec.Reference, BookingEvent{
		Reference:  rec.Reference,
		SessionID:  rec.SessionID,
		OwnerID:    rec.OwnerID,
		Status:     string(rec.Status),
		FollowUp:   rec.FollowUp,
		Total:      rec.Total,
		Legs:       rec.Legs,
		OccurredAt: time.Now().UTC(),
	})
}

func (e *events) sessionAbandoned(ctx context.Context, id uuid.UUID, ownerID *string, lastStep, reason string) {
	e.publish(ctx, EventSessionAbandoned, id.String(), SessionAbandonedEvent{
		SessionID:  id,
		OwnerID:    ownerID,
		LastStep:   lastStep,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

func (e *events) publish(ctx context.Context, eventType, subject string, data interface{}) {
	if e == nil || e.publisher == nil {
		return
	}
	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		e.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	cloudEvent.Subject = subject

	if err := e.publisher.PublishEvent(ctx, e.topic, cloudEvent); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("topic", e.topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
