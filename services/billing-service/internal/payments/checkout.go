package payments

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/stripe/stripe-go/v79"
)

type CheckoutInput struct {
	AppointmentID  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutResult struct {
	SessionID string
	URL       string
	Payment   Payment
}

// CreateCheckout opens a manual-capture Stripe Checkout for a complete,
// unpaid draft. An open session for the same amount is handed back instead
// of creating another.
func (s *Service) CreateCheckout(ctx context.Context, p auth.Principal, in CheckoutInput) (CheckoutResult, error) {
	if s.processor == nil {
		return CheckoutResult{}, errNotConfigured
	}
	appt, err := s.appointments.GetAppointment(ctx, p, in.AppointmentID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if appt.OwnerID != p.UserID {
		return CheckoutResult{}, apperr.Forbidden("only the pet owner can pay for an appointment")
	}
	if appt.Status != "pending" {
		return CheckoutResult{}, apperr.Conflict("appointment is no longer a draft")
	}
	if appt.PaymentStatus != "" && appt.PaymentStatus != "unpaid" {
		return CheckoutResult{}, apperr.Conflict("appointment is already paid")
	}
	if len(appt.MissingFields) > 0 {
		return CheckoutResult{}, apperr.Validation("appointment is incomplete: missing " + strings.Join(appt.MissingFields, ", "))
	}
	if appt.TotalCents <= 0 {
		return CheckoutResult{}, apperr.Validation("appointment has nothing to pay for")
	}

	existing, err := s.store.GetPayment(ctx, appt.ID)
	switch {
	case err == nil:
		switch existing.Status {
		case StatusCheckoutOpen:
			if existing.AmountCents == appt.TotalCents && existing.CheckoutSessionID != "" {
				sess, err := s.store.GetCheckoutSession(ctx, existing.CheckoutSessionID)
				if err == nil && sess.Open() {
					return CheckoutResult{SessionID: sess.StripeSessionID, URL: sess.URL, Payment: existing}, nil
				}
			}
		case StatusExpired:
		default:
			return CheckoutResult{}, apperr.Conflict("appointment is already paid")
		}
	case db.IsNotFound(err):
	default:
		return CheckoutResult{}, apperr.Internal("load payment", err)
	}

	successURL := firstNonEmpty(in.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(in.CancelURL, s.cancelURL)
	if successURL == "" || cancelURL == "" {
		return CheckoutResult{}, apperr.Validation("success_url and cancel_url are required")
	}
	// The return pages are public; the state token ties them to this session.
	returnToken := newReturnToken()
	successURL = withSessionPlaceholder(withQueryParam(successURL, "state", returnToken))
	cancelURL = withSessionPlaceholder(withQueryParam(cancelURL, "state", returnToken))

	currency := firstNonEmpty(appt.Currency, "usd")
	items := make([]LineItem, 0, len(appt.Services))
	for _, svc := range appt.Services {
		items = append(items, LineItem{Name: svc.Name, AmountCents: svc.PriceCents})
	}
	sess, err := s.processor.CreateCheckoutSession(ctx, CheckoutRequest{
		AppointmentID:  appt.ID,
		OwnerID:        appt.OwnerID,
		Currency:       currency,
		Items:          items,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return CheckoutResult{}, apperr.Upstream("create checkout session", err)
	}

	pay := Payment{
		AppointmentID:     appt.ID,
		OwnerID:           appt.OwnerID,
		Status:            StatusCheckoutOpen,
		CheckoutSessionID: sess.ID,
		AmountCents:       appt.TotalCents,
		Currency:          currency,
	}
	err = s.store.InTx(ctx, func(tx Tx) error {
		ok, err := tx.UpsertPayment(ctx, pay)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("appointment is already paid")
		}
		if err := tx.UpsertCheckoutSession(ctx, CheckoutSession{
			StripeSessionID: sess.ID,
			AppointmentID:   appt.ID,
			OwnerID:         appt.OwnerID,
			Status:          "created",
			URL:             sess.URL,
			ReturnToken:     returnToken,
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, "billing.checkout.created", p, appt.ID, map[string]any{
			"stripe_session_id": sess.ID,
			"amount_cents":      appt.TotalCents,
			"currency":          currency,
		})
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return CheckoutResult{}, err
		}
		return CheckoutResult{}, apperr.Internal("persist checkout session", err)
	}
	s.logger.Info("checkout session created", "appointment_id", appt.ID, "stripe_session_id", sess.ID)
	return CheckoutResult{SessionID: sess.ID, URL: sess.URL, Payment: pay}, nil
}

// SessionStatus is read by the public return pages; it carries no payment
// details.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (CheckoutSession, error) {
	sess, err := s.store.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if db.IsNotFound(err) {
			return CheckoutSession{}, apperr.NotFound("checkout session not found")
		}
		return CheckoutSession{}, apperr.Internal("load checkout session", err)
	}
	return sess, nil
}

// AckReturn records that the customer came back from Stripe. A cancel marks
// the session canceled unless the webhook already completed it.
func (s *Service) AckReturn(ctx context.Context, sessionID, token, result string) error {
	var found bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		found, err = tx.AckCheckoutReturn(ctx, sessionID, token, result, s.now())
		return err
	})
	if err != nil {
		return apperr.Internal("record checkout return", err)
	}
	if !found {
		return apperr.NotFound("checkout session not found")
	}
	return nil
}

// ApplyStripeEvent applies one verified webhook event. It reports
// duplicate when the event id was already recorded.
func (s *Service) ApplyStripeEvent(ctx context.Context, evt stripe.Event, raw []byte) (duplicate bool, err error) {
	var orphan *Payment
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertProviderEvent(ctx, ProviderEvent{
			Provider:        "stripe",
			ProviderEventID: evt.ID,
			EventType:       string(evt.Type),
			Payload:         raw,
		}); err != nil {
			if errors.Is(err, ErrDuplicateProviderEvent) {
				duplicate = true
				return nil
			}
			return err
		}

		metadata := map[string]any{
			"provider":          "stripe",
			"provider_event_id": evt.ID,
			"event_type":        string(evt.Type),
		}
		switch evt.Type {
		case "checkout.session.completed", "checkout.session.expired":
		default:
			return s.audit(ctx, tx, "billing.provider.stripe.webhook", auth.Principal{}, "", metadata)
		}

		var cs stripe.CheckoutSession
		if evt.Data == nil || json.Unmarshal(evt.Data.Raw, &cs) != nil || cs.ID == "" {
			return apperr.Validation("malformed checkout session event")
		}
		appointmentID := sessionAppointmentID(cs)
		metadata["stripe_session_id"] = cs.ID
		if err := s.audit(ctx, tx, "billing.provider.stripe.webhook", auth.Principal{}, appointmentID, metadata); err != nil {
			return err
		}
		if evt.Type == "checkout.session.expired" {
			return s.applyExpired(ctx, tx, cs, appointmentID)
		}
		var err error
		orphan, err = s.applyCompleted(ctx, tx, cs, appointmentID)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			return false, err
		}
		return false, apperr.Internal("apply stripe event", err)
	}

	if orphan != nil && s.processor != nil {
		// The appointment was released while checkout was still open.
		if _, err := s.processor.CancelIntent(ctx, orphan.PaymentIntentID, releaseKey(orphan.AppointmentID)); err != nil {
			s.logger.Error("cancel authorization of released payment failed",
				"err", err,
				"appointment_id", orphan.AppointmentID,
				"payment_intent_id", orphan.PaymentIntentID,
			)
		}
	}
	return duplicate, nil
}

func (s *Service) applyCompleted(ctx context.Context, tx Tx, cs stripe.CheckoutSession, appointmentID string) (*Payment, error) {
	now := s.now()
	if err := tx.MarkCheckoutSessionCompleted(ctx, cs.ID, now); err != nil {
		return nil, err
	}
	if appointmentID == "" {
		s.logger.Warn("completed checkout session has no appointment", "stripe_session_id", cs.ID)
		return nil, nil
	}
	pay, err := tx.GetPaymentForUpdate(ctx, appointmentID)
	if err != nil {
		if db.IsNotFound(err) {
			s.logger.Warn("completed checkout session for unknown payment", "stripe_session_id", cs.ID, "appointment_id", appointmentID)
			return nil, nil
		}
		return nil, err
	}
	intentID := ""
	if cs.PaymentIntent != nil {
		intentID = cs.PaymentIntent.ID
	}

	switch pay.Status {
	case StatusCheckoutOpen, StatusExpired:
		changed, err := tx.TransitionPayment(ctx, appointmentID, []Status{StatusCheckoutOpen, StatusExpired}, StatusAuthorized, intentID, now)
		if err != nil || !changed {
			return nil, err
		}
		pay.Status = StatusAuthorized
		pay.PaymentIntentID = intentID
		pay.CheckoutSessionID = cs.ID
		pay.AuthorizedAt = &now
		return nil, s.emit(ctx, tx, events.PaymentAuthorized, pay)
	case StatusReleased:
		if intentID == "" {
			return nil, nil
		}
		pay.PaymentIntentID = intentID
		return &pay, nil
	default:
		return nil, nil
	}
}

func (s *Service) applyExpired(ctx context.Context, tx Tx, cs stripe.CheckoutSession, appointmentID string) error {
	now := s.now()
	if err := tx.MarkCheckoutSessionExpired(ctx, cs.ID, now); err != nil {
		return err
	}
	if appointmentID == "" {
		return nil
	}
	pay, err := tx.GetPaymentForUpdate(ctx, appointmentID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return err
	}
	if pay.Status != StatusCheckoutOpen || pay.CheckoutSessionID != cs.ID {
		return nil
	}
	_, err = tx.TransitionPayment(ctx, appointmentID, []Status{StatusCheckoutOpen}, StatusExpired, "", now)
	return err
}

// sessionAppointmentID reads the appointment a session was opened for.
// Anything that is not a uuid was not written by CreateCheckout and is
// treated as absent.
func sessionAppointmentID(cs stripe.CheckoutSession) string {
	id := strings.TrimSpace(cs.Metadata["appointment_id"])
	if id == "" {
		id = strings.TrimSpace(cs.ClientReferenceID)
	}
	if uuid.Validate(id) != nil {
		return ""
	}
	return id
}

func newReturnToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func withQueryParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + url.QueryEscape(value)
}

// withSessionPlaceholder appends Stripe's session id template, which must
// stay unescaped.
func withSessionPlaceholder(rawURL string) string {
	return rawURL + "&session_id={CHECKOUT_SESSION_ID}"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
