package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/kafka"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NoteFollowUp(ctx context.Context, reference string) error {
	return m.Called(ctx, reference).Error(0)
}

func message(t *testing.T, eventType string, data interface{}) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-booking", eventType, data)
	require.NoError(t, err)
	value, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Topic: application.TopicBookingEvents, Value: value}
}

func newTestConsumer(n FollowUpNotifier) *FollowUpConsumer {
	return &FollowUpConsumer{notifier: n, logger: zap.NewNop()}
}

func TestHandleMessage_EscalatesPartiallyConfirmed(t *testing.T) {
	n := &mockNotifier{}
	n.On("NoteFollowUp", mock.Anything, "TRV-ABCD2345").Return(nil).Once()

	err := newTestConsumer(n).handleMessage(context.Background(),
		message(t, application.EventBookingPartiallyConfirmed, application.BookingEvent{Reference: "TRV-ABCD2345"}))
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestHandleMessage_IgnoresOtherEvents(t *testing.T) {
	n := &mockNotifier{}
	c := newTestConsumer(n)

	require.NoError(t, c.handleMessage(context.Background(),
		message(t, application.EventBookingCommitted, application.BookingEvent{Reference: "TRV-ABCD2345"})))
	require.NoError(t, c.handleMessage(context.Background(), kafkago.Message{Value: []byte("not json")}))
	n.AssertNotCalled(t, "NoteFollowUp", mock.Anything, mock.Anything)
}

func TestHandleMessage_NotifierErrorsSurface(t *testing.T) {
	n := &mockNotifier{}
	boom := errors.New("ledger unreachable")
	n.On("NoteFollowUp", mock.Anything, "TRV-ABCD2345").Return(boom)

	err := newTestConsumer(n).handleMessage(context.Background(),
		message(t, application.EventBookingPartiallyConfirmed, application.BookingEvent{Reference: "TRV-ABCD2345"}))
	assert.ErrorIs(t, err, boom)
}
