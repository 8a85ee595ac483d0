package payments_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments/paymentstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

var (
	owner    = auth.Principal{UserID: "11111111-1111-1111-1111-111111111111", Role: auth.RolePetOwner}
	stranger = auth.Principal{UserID: "22222222-2222-2222-2222-222222222222", Role: auth.RolePetOwner}
	admin    = auth.Principal{UserID: "33333333-3333-3333-3333-333333333333", Role: auth.RoleAdmin}
	fixedNow = time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
)

const apptID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"

type processorMock struct{ mock.Mock }

func (m *processorMock) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payments.Session), args.Error(1)
}

func (m *processorMock) ExpireCheckoutSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *processorMock) CaptureIntent(ctx context.Context, id, key string) (payments.Intent, error) {
	args := m.Called(ctx, id, key)
	return args.Get(0).(payments.Intent), args.Error(1)
}

func (m *processorMock) CancelIntent(ctx context.Context, id, key string) (payments.Intent, error) {
	args := m.Called(ctx, id, key)
	return args.Get(0).(payments.Intent), args.Error(1)
}

func (m *processorMock) GetIntent(ctx context.Context, id string) (payments.Intent, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payments.Intent), args.Error(1)
}

type appointmentsStub struct {
	appt payments.Appointment
	err  error
}

func (s *appointmentsStub) GetAppointment(_ context.Context, _ auth.Principal, _ string) (payments.Appointment, error) {
	return s.appt, s.err
}

func draftAppointment() payments.Appointment {
	return payments.Appointment{
		ID:            apptID,
		OwnerID:       owner.UserID,
		Status:        "pending",
		PaymentStatus: "unpaid",
		Services: []payments.BookedService{
			{Code: "house_call", Name: "House call", PriceCents: 9000},
			{Code: "vaccination", Name: "Vaccination", PriceCents: 3000},
		},
		TotalCents: 12000,
		Currency:   "usd",
		Version:    4,
	}
}

type fixture struct {
	svc   *payments.Service
	store *paymentstest.Store
	proc  *processorMock
	appts *appointmentsStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := paymentstest.New()
	proc := &processorMock{}
	appts := &appointmentsStub{appt: draftAppointment()}
	svc := payments.NewService(store, proc, appts, slog.New(slog.NewTextHandler(io.Discard, nil)), payments.Options{
		SuccessURL: "https://vetcall.test/payments/success",
		CancelURL:  "https://vetcall.test/payments/cancel",
		Now:        func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { proc.AssertExpectations(t) })
	return &fixture{svc: svc, store: store, proc: proc, appts: appts}
}

func (f *fixture) authorized() payments.Payment {
	p := payments.Payment{
		AppointmentID:     apptID,
		OwnerID:           owner.UserID,
		Status:            payments.StatusAuthorized,
		PaymentIntentID:   "pi_123",
		CheckoutSessionID: "cs_123",
		AmountCents:       12000,
		Currency:          "usd",
	}
	f.store.Put(p)
	return p
}

func stripeEvent(t *testing.T, id string, typ stripe.EventType, session map[string]any) (stripe.Event, []byte) {
	t.Helper()
	obj, err := json.Marshal(session)
	require.NoError(t, err)
	evt := stripe.Event{ID: id, Type: typ, Data: &stripe.EventData{Raw: obj}}
	raw, err := json.Marshal(map[string]any{"id": id, "type": string(typ), "data": map[string]any{"object": session}})
	require.NoError(t, err)
	return evt, raw
}

func TestCreateCheckoutOpensManualCaptureSession(t *testing.T) {
	f := newFixture(t)
	var sent payments.CheckoutRequest
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(payments.CheckoutRequest) }).
		Return(payments.Session{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil).Once()

	res, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID, IdempotencyKey: "idem-1"})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_123", res.URL)

	assert.Equal(t, apptID, sent.AppointmentID)
	assert.Equal(t, owner.UserID, sent.OwnerID)
	assert.Equal(t, "idem-1", sent.IdempotencyKey)
	assert.Equal(t, []payments.LineItem{{Name: "House call", AmountCents: 9000}, {Name: "Vaccination", AmountCents: 3000}}, sent.Items)
	assert.True(t, strings.HasPrefix(sent.SuccessURL, "https://vetcall.test/payments/success?state="))
	assert.True(t, strings.HasSuffix(sent.SuccessURL, "&session_id={CHECKOUT_SESSION_ID}"))

	pay := f.store.Payment(apptID)
	assert.Equal(t, payments.StatusCheckoutOpen, pay.Status)
	assert.Equal(t, int64(12000), pay.AmountCents)
	sess, err := f.svc.SessionStatus(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "created", sess.Status)
	assert.NotEmpty(t, sess.ReturnToken)
	assert.Contains(t, sent.CancelURL, "state="+sess.ReturnToken)
	assert.Equal(t, []string{"billing.checkout.created"}, f.store.AuditTypes())
	assert.Empty(t, f.store.EventTypes())
}

func TestCreateCheckoutReusesOpenSession(t *testing.T) {
	f := newFixture(t)
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(payments.Session{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil).Once()

	first, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	require.NoError(t, err)
	second, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestCreateCheckoutRejections(t *testing.T) {
	cases := []struct {
		name   string
		caller auth.Principal
		edit   func(*payments.Appointment)
		kind   apperr.Kind
	}{
		{"not the owner", stranger, func(*payments.Appointment) {}, apperr.KindForbidden},
		{"not a draft", owner, func(a *payments.Appointment) { a.Status = "waiting_for_vet" }, apperr.KindConflict},
		{"already paid", owner, func(a *payments.Appointment) { a.PaymentStatus = "authorized" }, apperr.KindConflict},
		{"incomplete", owner, func(a *payments.Appointment) { a.MissingFields = []string{"date", "address"} }, apperr.KindValidation},
		{"nothing to pay", owner, func(a *payments.Appointment) { a.TotalCents = 0 }, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.edit(&f.appts.appt)
			_, err := f.svc.CreateCheckout(context.Background(), tc.caller, payments.CheckoutInput{AppointmentID: apptID})
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			f.proc.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateCheckoutMissingFieldsMessage(t *testing.T) {
	f := newFixture(t)
	f.appts.appt.MissingFields = []string{"date", "address"}
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	assert.Equal(t, "appointment is incomplete: missing date, address", apperr.Message(err))
}

func TestCreateCheckoutPassesBookingErrors(t *testing.T) {
	f := newFixture(t)
	f.appts.err = apperr.NotFound("appointment not found")
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateCheckoutStripeFailureIsUpstream(t *testing.T) {
	f := newFixture(t)
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(payments.Session{}, errors.New("card network down")).Once()
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, payments.Payment{}, f.store.Payment(apptID))
}

func TestCreateCheckoutRejectsAuthorizedPayment(t *testing.T) {
	f := newFixture(t)
	f.authorized()
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCheckoutCompletedAuthorizesOnce(t *testing.T) {
	f := newFixture(t)
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(payments.Session{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil).Once()
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	require.NoError(t, err)

	evt, raw := stripeEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":                  "cs_123",
		"object":              "checkout.session",
		"client_reference_id": apptID,
		"payment_intent":      "pi_123",
		"metadata":            map[string]string{"appointment_id": apptID, "owner_id": owner.UserID},
	})
	dup, err := f.svc.ApplyStripeEvent(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.False(t, dup)

	pay := f.store.Payment(apptID)
	assert.Equal(t, payments.StatusAuthorized, pay.Status)
	assert.Equal(t, "pi_123", pay.PaymentIntentID)
	assert.Equal(t, []string{events.PaymentAuthorized}, f.store.EventTypes())

	var body events.Payment
	require.NoError(t, json.Unmarshal(f.store.Events()[0].Payload, &body))
	assert.Equal(t, apptID, body.AppointmentID)
	assert.Equal(t, "pi_123", body.PaymentIntentID)
	assert.Equal(t, "cs_123", body.CheckoutSessionID)
	assert.Equal(t, "authorized", body.Status)

	sess, err := f.svc.SessionStatus(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "completed", sess.Status)

	dup, err = f.svc.ApplyStripeEvent(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Len(t, f.store.EventTypes(), 1)
}

func TestCheckoutCompletedAfterReleaseCancelsIntent(t *testing.T) {
	f := newFixture(t)
	f.store.Put(payments.Payment{AppointmentID: apptID, OwnerID: owner.UserID, Status: payments.StatusReleased, CheckoutSessionID: "cs_9", AmountCents: 12000, Currency: "usd"})
	f.proc.On("CancelIntent", mock.Anything, "pi_9", "release-"+apptID).Return(payments.Intent{ID: "pi_9", Status: stripe.PaymentIntentStatusCanceled}, nil).Once()

	evt, raw := stripeEvent(t, "evt_9", "checkout.session.completed", map[string]any{
		"id":             "cs_9",
		"payment_intent": "pi_9",
		"metadata":       map[string]string{"appointment_id": apptID},
	})
	_, err := f.svc.ApplyStripeEvent(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusReleased, f.store.Payment(apptID).Status)
	assert.Empty(t, f.store.EventTypes())
}

func TestCheckoutExpiredMarksPaymentExpired(t *testing.T) {
	f := newFixture(t)
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(payments.Session{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil).Once()
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	require.NoError(t, err)

	evt, raw := stripeEvent(t, "evt_2", "checkout.session.expired", map[string]any{
		"id":                  "cs_123",
		"client_reference_id": apptID,
	})
	_, err = f.svc.ApplyStripeEvent(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusExpired, f.store.Payment(apptID).Status)

	// An expired checkout can be reopened.
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(payments.Session{ID: "cs_456", URL: "https://checkout.stripe.test/cs_456"}, nil).Once()
	res, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	require.NoError(t, err)
	assert.Equal(t, "cs_456", res.SessionID)
	assert.Equal(t, payments.StatusCheckoutOpen, f.store.Payment(apptID).Status)
}

func TestCheckoutEventWithMalformedAppointmentIsIgnored(t *testing.T) {
	f := newFixture(t)
	evt, raw := stripeEvent(t, "evt_5", "checkout.session.completed", map[string]any{
		"id":                  "cs_999",
		"status":              "complete",
		"payment_intent":      "pi_999",
		"client_reference_id": "not-a-uuid",
		"metadata":            map[string]string{"appointment_id": "not-a-uuid"},
	})
	_, err := f.svc.ApplyStripeEvent(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Empty(t, f.store.EventTypes())
	require.Len(t, f.store.Audits(), 1)
	assert.Empty(t, f.store.Audits()[0].AppointmentID)
}

func TestUnhandledStripeEventIsAuditedOnly(t *testing.T) {
	f := newFixture(t)
	evt, raw := stripeEvent(t, "evt_3", "charge.refunded", map[string]any{"id": "ch_1"})
	dup, err := f.svc.ApplyStripeEvent(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, []string{"billing.provider.stripe.webhook"}, f.store.AuditTypes())
	assert.Empty(t, f.store.EventTypes())
}

func TestMalformedCheckoutEventIsValidation(t *testing.T) {
	f := newFixture(t)
	evt := stripe.Event{ID: "evt_4", Type: "checkout.session.completed", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	_, err := f.svc.ApplyStripeEvent(context.Background(), evt, []byte(`{"id":"evt_4"}`))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCaptureAuthorizedPayment(t *testing.T) {
	f := newFixture(t)
	f.authorized()
	f.proc.On("CaptureIntent", mock.Anything, "pi_123", "capture-"+apptID).
		Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}, nil).Once()

	pay, err := f.svc.Capture(context.Background(), payments.System, apptID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCaptured, pay.Status)
	assert.Equal(t, payments.StatusCaptured, f.store.Payment(apptID).Status)
	assert.NotNil(t, f.store.Payment(apptID).CaptureRequestedAt)
	assert.Equal(t, []string{events.PaymentCaptured}, f.store.EventTypes())
	assert.Equal(t, []string{"billing.payment.captured"}, f.store.AuditTypes())
	assert.Equal(t, "system", f.store.Audits()[0].ActorType)
}

func TestCaptureSettledIsNoOp(t *testing.T) {
	for _, status := range []payments.Status{payments.StatusCaptured, payments.StatusPaid} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			p := f.authorized()
			p.Status = status
			f.store.Put(p)

			pay, err := f.svc.Capture(context.Background(), payments.System, apptID)
			require.NoError(t, err)
			assert.Equal(t, status, pay.Status)
			f.proc.AssertNotCalled(t, "CaptureIntent", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, f.store.EventTypes())
		})
	}
}

func TestCaptureOtherStatusesConflict(t *testing.T) {
	for _, status := range []payments.Status{payments.StatusCheckoutOpen, payments.StatusReleased, payments.StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			p := f.authorized()
			p.Status = status
			f.store.Put(p)

			_, err := f.svc.Capture(context.Background(), payments.System, apptID)
			assert.True(t, apperr.Is(err, apperr.KindConflict))
		})
	}
}

func TestCaptureMissingPayment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Capture(context.Background(), payments.System, apptID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCaptureStripeFailureLeavesAuthorized(t *testing.T) {
	f := newFixture(t)
	f.authorized()
	f.proc.On("CaptureIntent", mock.Anything, "pi_123", mock.Anything).Return(payments.Intent{}, errors.New("timeout")).Once()
	f.proc.On("GetIntent", mock.Anything, "pi_123").Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresCapture}, nil).Once()

	_, err := f.svc.Capture(context.Background(), payments.System, apptID)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, payments.StatusAuthorized, f.store.Payment(apptID).Status)
	assert.Empty(t, f.store.EventTypes())
}

func TestCaptureAlreadyCapturedAtStripe(t *testing.T) {
	f := newFixture(t)
	f.authorized()
	f.proc.On("CaptureIntent", mock.Anything, "pi_123", mock.Anything).Return(payments.Intent{}, errors.New("payment_intent_unexpected_state")).Once()
	f.proc.On("GetIntent", mock.Anything, "pi_123").Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}, nil).Once()

	pay, err := f.svc.Capture(context.Background(), payments.System, apptID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCaptured, pay.Status)
	assert.Equal(t, []string{events.PaymentCaptured}, f.store.EventTypes())
}

func TestCaptureLocalFailureAfterStripeSuccessIsNotRolledBack(t *testing.T) {
	f := newFixture(t)
	f.authorized()
	f.proc.On("CaptureIntent", mock.Anything, "pi_123", mock.Anything).
		Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}, nil).Once()
	f.store.FailWrites = true

	pay, err := f.svc.Capture(context.Background(), payments.System, apptID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCaptured, pay.Status)
	f.proc.AssertNotCalled(t, "CancelIntent", mock.Anything, mock.Anything, mock.Anything)

	// The row stays authorized with a capture request, so the reconciler finds it.
	stored := f.store.Payment(apptID)
	assert.Equal(t, payments.StatusAuthorized, stored.Status)
	require.NotNil(t, stored.CaptureRequestedAt)
	candidates, err := f.svc.ListCaptureCandidates(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, apptID, candidates[0].AppointmentID)
}

func TestReleaseAuthorizedPayment(t *testing.T) {
	f := newFixture(t)
	f.authorized()
	f.proc.On("CancelIntent", mock.Anything, "pi_123", "release-"+apptID).
		Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusCanceled}, nil).Once()

	pay, err := f.svc.Release(context.Background(), payments.System, apptID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusReleased, pay.Status)
	assert.Equal(t, []string{events.PaymentReleased}, f.store.EventTypes())

	again, err := f.svc.Release(context.Background(), payments.System, apptID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusReleased, again.Status)
	assert.Len(t, f.store.EventTypes(), 1)
}

func TestReleaseOpenCheckoutExpiresSession(t *testing.T) {
	f := newFixture(t)
	f.store.Put(payments.Payment{AppointmentID: apptID, OwnerID: owner.UserID, Status: payments.StatusCheckoutOpen, CheckoutSessionID: "cs_1", AmountCents: 12000, Currency: "usd"})
	f.proc.On("ExpireCheckoutSession", mock.Anything, "cs_1").Return(nil).Once()

	pay, err := f.svc.Release(context.Background(), payments.System, apptID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusReleased, pay.Status)
}

func TestReleaseCapturedConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.authorized()
	p.Status = payments.StatusCaptured
	f.store.Put(p)
	_, err := f.svc.Release(context.Background(), payments.System, apptID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestReconcileHealsDrift(t *testing.T) {
	cases := []struct {
		name   string
		remote stripe.PaymentIntentStatus
		want   payments.Status
		event  string
	}{
		{"captured remotely", stripe.PaymentIntentStatusSucceeded, payments.StatusCaptured, events.PaymentCaptured},
		{"canceled remotely", stripe.PaymentIntentStatusCanceled, payments.StatusReleased, events.PaymentReleased},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.authorized()
			f.proc.On("GetIntent", mock.Anything, "pi_123").Return(payments.Intent{ID: "pi_123", Status: tc.remote}, nil).Once()

			got, err := f.svc.Reconcile(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)
			assert.Equal(t, []string{tc.event}, f.store.EventTypes())
		})
	}
}

func TestReconcileRetriesPendingCapture(t *testing.T) {
	f := newFixture(t)
	p := f.authorized()
	f.proc.On("GetIntent", mock.Anything, "pi_123").Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresCapture}, nil).Once()
	f.proc.On("CaptureIntent", mock.Anything, "pi_123", "capture-"+apptID).
		Return(payments.Intent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}, nil).Once()

	got, err := f.svc.Reconcile(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCaptured, got.Status)
}

func TestGetPaymentVisibility(t *testing.T) {
	f := newFixture(t)
	f.authorized()

	_, err := f.svc.Get(context.Background(), owner, apptID)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), admin, apptID)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), stranger, apptID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAckReturnNeedsMatchingToken(t *testing.T) {
	f := newFixture(t)
	f.proc.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(payments.Session{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil).Once()
	_, err := f.svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	require.NoError(t, err)
	sess, err := f.svc.SessionStatus(context.Background(), "cs_123")
	require.NoError(t, err)

	err = f.svc.AckReturn(context.Background(), "cs_123", "wrong", "cancel")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.svc.AckReturn(context.Background(), "cs_123", sess.ReturnToken, "cancel"))
	sess, err = f.svc.SessionStatus(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, "canceled", sess.Status)
	assert.NotNil(t, sess.ReturnSeenAt)
}

func TestWithoutProcessorStripeCallsFail(t *testing.T) {
	store := paymentstest.New()
	svc := payments.NewService(store, nil, &appointmentsStub{appt: draftAppointment()}, slog.New(slog.NewTextHandler(io.Discard, nil)), payments.Options{})
	_, err := svc.CreateCheckout(context.Background(), owner, payments.CheckoutInput{AppointmentID: apptID})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}
