package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/stripe/stripe-go/v79"
)

func captureKey(appointmentID string) string { return "capture-" + appointmentID }
func releaseKey(appointmentID string) string { return "release-" + appointmentID }

// Capture takes the authorized amount after the visit. Capturing a settled
// payment is a no-op that does not reach Stripe. Once Stripe has captured,
// a failed local update is logged and the capture stands; the reconciler
// heals the row later.
func (s *Service) Capture(ctx context.Context, actor auth.Principal, appointmentID string) (Payment, error) {
	pay, err := s.load(ctx, appointmentID)
	if err != nil {
		return Payment{}, err
	}
	if pay.Status.Settled() {
		return pay, nil
	}
	if pay.Status != StatusAuthorized || pay.PaymentIntentID == "" {
		return pay, apperr.Conflict(fmt.Sprintf("cannot capture a %s payment", pay.Status))
	}
	if s.processor == nil {
		return pay, errNotConfigured
	}

	now := s.now()
	if err := s.store.MarkCaptureRequested(ctx, appointmentID, now); err != nil {
		return pay, apperr.Internal("record capture request", err)
	}
	if _, err := s.processor.CaptureIntent(ctx, pay.PaymentIntentID, captureKey(appointmentID)); err != nil {
		if !s.intentIs(ctx, pay.PaymentIntentID, stripe.PaymentIntentStatusSucceeded) {
			return pay, apperr.Upstream("capture payment", err)
		}
	}

	captured, err := s.settle(ctx, actor, pay, StatusCaptured, events.PaymentCaptured, "billing.payment.captured")
	if err != nil {
		s.logger.Error("payment captured at stripe but not recorded",
			"err", err,
			"appointment_id", appointmentID,
			"payment_intent_id", pay.PaymentIntentID,
		)
		pay.Status = StatusCaptured
		pay.CapturedAt = &now
		return pay, nil
	}
	s.logger.Info("payment captured", "appointment_id", appointmentID, "payment_intent_id", pay.PaymentIntentID)
	return captured, nil
}

// Release gives back an authorization that will never be captured. A
// checkout still in progress is expired at Stripe instead.
func (s *Service) Release(ctx context.Context, actor auth.Principal, appointmentID string) (Payment, error) {
	pay, err := s.load(ctx, appointmentID)
	if err != nil {
		return Payment{}, err
	}
	switch pay.Status {
	case StatusReleased, StatusExpired:
		return pay, nil
	case StatusCaptured, StatusPaid:
		return pay, apperr.Conflict("a captured payment cannot be released")
	case StatusCheckoutOpen:
		if s.processor != nil && pay.CheckoutSessionID != "" {
			if err := s.processor.ExpireCheckoutSession(ctx, pay.CheckoutSessionID); err != nil {
				s.logger.Warn("expire checkout session failed", "err", err, "stripe_session_id", pay.CheckoutSessionID)
			}
		}
	case StatusAuthorized:
		if s.processor == nil {
			return pay, errNotConfigured
		}
		if _, err := s.processor.CancelIntent(ctx, pay.PaymentIntentID, releaseKey(appointmentID)); err != nil {
			if !s.intentIs(ctx, pay.PaymentIntentID, stripe.PaymentIntentStatusCanceled) {
				return pay, apperr.Upstream("release payment", err)
			}
		}
	default:
		return pay, apperr.Conflict(fmt.Sprintf("cannot release a %s payment", pay.Status))
	}

	released, err := s.settle(ctx, actor, pay, StatusReleased, events.PaymentReleased, "billing.payment.released")
	if err != nil {
		return pay, apperr.Internal("record payment release", err)
	}
	s.logger.Info("payment released", "appointment_id", appointmentID, "payment_intent_id", pay.PaymentIntentID)
	return released, nil
}

// Reconcile re-reads the payment intent of an authorized payment and brings
// the local row in line with Stripe. An intent still waiting for capture is
// captured again.
func (s *Service) Reconcile(ctx context.Context, pay Payment) (Payment, error) {
	if pay.Status != StatusAuthorized || pay.PaymentIntentID == "" {
		return pay, nil
	}
	if s.processor == nil {
		return pay, errNotConfigured
	}
	intent, err := s.processor.GetIntent(ctx, pay.PaymentIntentID)
	if err != nil {
		return pay, apperr.Upstream("read payment intent", err)
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return s.settle(ctx, System, pay, StatusCaptured, events.PaymentCaptured, "billing.payment.captured")
	case stripe.PaymentIntentStatusCanceled:
		return s.settle(ctx, System, pay, StatusReleased, events.PaymentReleased, "billing.payment.released")
	case stripe.PaymentIntentStatusRequiresCapture:
		return s.Capture(ctx, System, pay.AppointmentID)
	default:
		return pay, nil
	}
}

// ListCaptureCandidates returns authorized payments whose capture was
// requested at least grace ago.
func (s *Service) ListCaptureCandidates(ctx context.Context, grace time.Duration, limit int) ([]Payment, error) {
	return s.store.ListCaptureCandidates(ctx, s.now().Add(-grace), limit)
}

// settle records the outcome of a Stripe call. Only the writer that moves
// the row emits the event, so concurrent settles publish once.
func (s *Service) settle(ctx context.Context, actor auth.Principal, pay Payment, to Status, eventType, auditType string) (Payment, error) {
	from := []Status{StatusAuthorized}
	if to == StatusReleased {
		from = append(from, StatusCheckoutOpen)
	}
	now := s.now()
	next := pay
	err := s.store.InTx(ctx, func(tx Tx) error {
		changed, err := tx.TransitionPayment(ctx, pay.AppointmentID, from, to, pay.PaymentIntentID, now)
		if err != nil || !changed {
			return err
		}
		next.Status = to
		switch to {
		case StatusCaptured:
			next.CapturedAt = &now
		case StatusReleased:
			next.ReleasedAt = &now
		}
		if err := s.audit(ctx, tx, auditType, actor, pay.AppointmentID, map[string]any{
			"payment_intent_id": pay.PaymentIntentID,
			"from":              string(pay.Status),
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, eventType, next)
	})
	if err != nil {
		return pay, err
	}
	if next.Status != to {
		return s.load(ctx, pay.AppointmentID)
	}
	return next, nil
}

func (s *Service) intentIs(ctx context.Context, intentID string, status stripe.PaymentIntentStatus) bool {
	intent, err := s.processor.GetIntent(ctx, intentID)
	return err == nil && intent.Status == status
}
