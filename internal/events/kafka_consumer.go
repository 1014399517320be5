package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/kafka"
)

// FollowUpNotifier raises operator alerts for bookings that need attention.
type FollowUpNotifier interface {
	NoteFollowUp(ctx context.Context, reference string) error
}

// FollowUpConsumer listens to booking events and escalates partially
// confirmed bookings to operators.
type FollowUpConsumer struct {
	consumer *kafka.Consumer
	notifier FollowUpNotifier
	logger   *zap.Logger
}

// NewFollowUpConsumer creates a new FollowUpConsumer.
func NewFollowUpConsumer(
	brokers []string,
	groupID string,
	notifier FollowUpNotifier,
	logger *zap.Logger,
) *FollowUpConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, application.TopicBookingEvents, logger)
	return &FollowUpConsumer{
		consumer: consumer,
		notifier: notifier,
		logger:   logger,
	}
}

// Start begins consuming booking events. This blocks until the context is cancelled.
func (c *FollowUpConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *FollowUpConsumer) Close() error {
	return c.consumer.Close()
}

func (c *FollowUpConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from booking topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case application.EventBookingPartiallyConfirmed:
		return c.handlePartiallyConfirmed(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled booking event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *FollowUpConsumer) handlePartiallyConfirmed(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt application.BookingEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse BookingEvent data", zap.Error(err))
		return nil // Don't retry malformed data
	}

	c.logger.Info("processing partially confirmed booking",
		zap.String("reference", evt.Reference),
		zap.String("session_id", evt.SessionID.String()),
	)

	if err := c.notifier.NoteFollowUp(ctx, evt.Reference); err != nil {
		c.logger.Error("failed to escalate partially confirmed booking",
			zap.String("reference", evt.Reference),
			zap.Error(err),
		)
		return err
	}
	return nil
}
