package workflow

import (
	"context"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

// system is the principal used for transitions driven by billing events.
var system = auth.Principal{UserID: "system", Role: auth.RoleAdmin}

// MarkPaymentAuthorized records the authorized payment intent and hands the
// draft to vets. Redelivered events for an already authorized appointment
// are no-ops.
func (s *Service) MarkPaymentAuthorized(ctx context.Context, id, paymentIntentID, checkoutSessionID string) (model.Appointment, error) {
	return s.mutate(ctx, system, id, 0, func(tx Tx, a *model.Appointment) error {
		if a.Status != model.StatusPending {
			return nil
		}
		prev := a.Status
		if err := move(a, model.StatusWaitingForVet); err != nil {
			return err
		}
		a.PaymentStatus = model.PaymentAuthorized
		a.PaymentIntentID = paymentIntentID
		if checkoutSessionID != "" {
			a.CheckoutSessionID = checkoutSessionID
		}
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		notify := []recipient{{userID: a.OwnerID, kind: KindWaitingForVet}}
		if a.VetID != "" {
			notify = append(notify, recipient{userID: a.VetID, kind: KindNewRequest})
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentWaitingForVet,
			previous:  prev,
			notify:    notify,
		})
	})
}

func (s *Service) MarkPaymentCaptured(ctx context.Context, id, paymentIntentID string) (model.Appointment, error) {
	return s.setPaymentStatus(ctx, id, paymentIntentID, model.PaymentCaptured)
}

func (s *Service) MarkPaymentReleased(ctx context.Context, id, paymentIntentID string) (model.Appointment, error) {
	return s.setPaymentStatus(ctx, id, paymentIntentID, model.PaymentReleased)
}

func (s *Service) setPaymentStatus(ctx context.Context, id, paymentIntentID string, status model.PaymentStatus) (model.Appointment, error) {
	return s.mutate(ctx, system, id, 0, func(tx Tx, a *model.Appointment) error {
		if a.PaymentStatus == status || a.PaymentStatus.Settled() {
			return nil
		}
		a.PaymentStatus = status
		if paymentIntentID != "" {
			a.PaymentIntentID = paymentIntentID
		}
		return s.update(ctx, tx, a)
	})
}
