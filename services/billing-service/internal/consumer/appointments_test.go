package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments/paymentstest"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type settlerMock struct{ mock.Mock }

func (m *settlerMock) Capture(_ context.Context, actor auth.Principal, id string) (payments.Payment, error) {
	args := m.Called(actor, id)
	return args.Get(0).(payments.Payment), args.Error(1)
}

func (m *settlerMock) Release(_ context.Context, actor auth.Principal, id string) (payments.Payment, error) {
	args := m.Called(actor, id)
	return args.Get(0).(payments.Payment), args.Error(1)
}

func appointmentMessage(t *testing.T, topic, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(events.Appointment{AppointmentID: id, Status: "whatever"})
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: b}
}

func newAppointments(s Settler) *Appointments {
	return NewAppointments(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCompletedCaptures(t *testing.T) {
	s := &settlerMock{}
	s.On("Capture", payments.System, "appt-1").Return(payments.Payment{Status: payments.StatusCaptured}, nil).Once()

	require.NoError(t, newAppointments(s).handle(context.Background(), appointmentMessage(t, events.AppointmentCompleted, "appt-1")))
	s.AssertExpectations(t)
}

func TestEndingTopicsRelease(t *testing.T) {
	for _, topic := range []string{events.AppointmentDeclined, events.AppointmentProposalDeclined, events.AppointmentCancelled} {
		t.Run(topic, func(t *testing.T) {
			s := &settlerMock{}
			s.On("Release", payments.System, "appt-2").Return(payments.Payment{Status: payments.StatusReleased}, nil).Once()
			require.NoError(t, newAppointments(s).handle(context.Background(), appointmentMessage(t, topic, "appt-2")))
			s.AssertExpectations(t)
		})
	}
}

func TestNotApplicableIsSkipped(t *testing.T) {
	s := &settlerMock{}
	s.On("Release", payments.System, "gone").Return(payments.Payment{}, apperr.NotFound("payment not found")).Once()
	s.On("Release", payments.System, "paid").Return(payments.Payment{}, apperr.Conflict("a captured payment cannot be released")).Once()
	a := newAppointments(s)

	assert.ErrorIs(t, a.handle(context.Background(), appointmentMessage(t, events.AppointmentCancelled, "gone")), kafkax.ErrSkip)
	assert.ErrorIs(t, a.handle(context.Background(), appointmentMessage(t, events.AppointmentCancelled, "paid")), kafkax.ErrSkip)
}

func TestStripeFailureIsRetried(t *testing.T) {
	s := &settlerMock{}
	s.On("Capture", payments.System, "appt-1").Return(payments.Payment{}, apperr.Upstream("capture payment", errors.New("timeout"))).Once()

	err := newAppointments(s).handle(context.Background(), appointmentMessage(t, events.AppointmentCompleted, "appt-1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, kafkax.ErrSkip)
}

func TestMalformedMessageSkipped(t *testing.T) {
	a := newAppointments(&settlerMock{})
	assert.ErrorIs(t, a.handle(context.Background(), kafka.Message{Topic: events.AppointmentCompleted, Value: []byte("{")}), kafkax.ErrSkip)
	assert.ErrorIs(t, a.handle(context.Background(), kafka.Message{Topic: events.AppointmentCompleted, Value: []byte("{}")}), kafkax.ErrSkip)
}

type expiringProcessor struct {
	payments.Processor
	expired []string
}

func (p *expiringProcessor) ExpireCheckoutSession(_ context.Context, id string) error {
	p.expired = append(p.expired, id)
	return nil
}

func TestCancelledDraftExpiresOpenCheckout(t *testing.T) {
	const cancelledID = "cccccccc-cccc-cccc-cccc-cccccccccccc"
	store := paymentstest.New()
	store.Put(payments.Payment{
		AppointmentID:     cancelledID,
		OwnerID:           "owner-1",
		Status:            payments.StatusCheckoutOpen,
		CheckoutSessionID: "cs_open",
		AmountCents:       9000,
		Currency:          "usd",
	})
	proc := &expiringProcessor{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := payments.NewService(store, proc, nil, logger, payments.Options{})

	require.NoError(t, NewAppointments(svc, logger).handle(context.Background(), appointmentMessage(t, events.AppointmentCancelled, cancelledID)))
	assert.Equal(t, []string{"cs_open"}, proc.expired)
	assert.Equal(t, payments.StatusReleased, store.Payment(cancelledID).Status)
	assert.Equal(t, []string{events.PaymentReleased}, store.EventTypes())
}
