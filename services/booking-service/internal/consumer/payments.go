// Package consumer applies billing events to appointments.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// PaymentSink is the part of the workflow that billing events drive.
type PaymentSink interface {
	MarkPaymentAuthorized(ctx context.Context, id, paymentIntentID, checkoutSessionID string) (model.Appointment, error)
	MarkPaymentCaptured(ctx context.Context, id, paymentIntentID string) (model.Appointment, error)
	MarkPaymentReleased(ctx context.Context, id, paymentIntentID string) (model.Appointment, error)
}

type Payments struct {
	sink   PaymentSink
	logger *slog.Logger
}

func NewPayments(sink PaymentSink, logger *slog.Logger) *Payments {
	return &Payments{sink: sink, logger: logger}
}

// Register subscribes to the billing payment topics.
func (p *Payments) Register(c *kafkax.Consumer) {
	c.Handle(events.PaymentAuthorized, p.handle)
	c.Handle(events.PaymentCaptured, p.handle)
	c.Handle(events.PaymentReleased, p.handle)
}

func (p *Payments) handle(ctx context.Context, msg kafka.Message) error {
	var evt events.Payment
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("%w: decode payment event: %v", kafkax.ErrSkip, err)
	}
	if evt.AppointmentID == "" {
		return fmt.Errorf("%w: payment event without appointment_id", kafkax.ErrSkip)
	}

	var (
		a   model.Appointment
		err error
	)
	switch msg.Topic {
	case events.PaymentAuthorized:
		a, err = p.sink.MarkPaymentAuthorized(ctx, evt.AppointmentID, evt.PaymentIntentID, evt.CheckoutSessionID)
	case events.PaymentCaptured:
		a, err = p.sink.MarkPaymentCaptured(ctx, evt.AppointmentID, evt.PaymentIntentID)
	case events.PaymentReleased:
		a, err = p.sink.MarkPaymentReleased(ctx, evt.AppointmentID, evt.PaymentIntentID)
	default:
		return fmt.Errorf("%w: unexpected topic %s", kafkax.ErrSkip, msg.Topic)
	}
	if err != nil {
		// Cancelled appointments are deleted; late billing events for them are dropped.
		if apperr.Is(err, apperr.KindNotFound) {
			return fmt.Errorf("%w: %v", kafkax.ErrSkip, err)
		}
		return err
	}
	p.logger.Info("payment event applied",
		"topic", msg.Topic,
		"appointment_id", a.ID,
		"status", a.Status,
		"payment_status", a.PaymentStatus,
	)
	return nil
}
