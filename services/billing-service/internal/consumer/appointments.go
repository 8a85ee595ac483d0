// Package consumer settles payments when booking reports how an
// appointment ended.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
	"github.com/segmentio/kafka-go"
)

type Settler interface {
	Capture(ctx context.Context, actor auth.Principal, appointmentID string) (payments.Payment, error)
	Release(ctx context.Context, actor auth.Principal, appointmentID string) (payments.Payment, error)
}

type Appointments struct {
	settler Settler
	logger  *slog.Logger
}

func NewAppointments(settler Settler, logger *slog.Logger) *Appointments {
	return &Appointments{settler: settler, logger: logger}
}

// Register subscribes to the booking topics that end an appointment.
func (a *Appointments) Register(c *kafkax.Consumer) {
	c.Handle(events.AppointmentCompleted, a.handle)
	c.Handle(events.AppointmentDeclined, a.handle)
	c.Handle(events.AppointmentProposalDeclined, a.handle)
	c.Handle(events.AppointmentCancelled, a.handle)
}

func (a *Appointments) handle(ctx context.Context, msg kafka.Message) error {
	var evt events.Appointment
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("%w: decode appointment event: %v", kafkax.ErrSkip, err)
	}
	if evt.AppointmentID == "" {
		return fmt.Errorf("%w: appointment event without appointment_id", kafkax.ErrSkip)
	}

	var (
		p   payments.Payment
		err error
	)
	switch msg.Topic {
	case events.AppointmentCompleted:
		p, err = a.settler.Capture(ctx, payments.System, evt.AppointmentID)
	case events.AppointmentDeclined, events.AppointmentProposalDeclined, events.AppointmentCancelled:
		p, err = a.settler.Release(ctx, payments.System, evt.AppointmentID)
	default:
		return fmt.Errorf("%w: unexpected topic %s", kafkax.ErrSkip, msg.Topic)
	}
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindConflict:
			a.logger.Warn("appointment event not applicable to payment",
				"topic", msg.Topic,
				"appointment_id", evt.AppointmentID,
				"err", err,
			)
			return fmt.Errorf("%w: %v", kafkax.ErrSkip, err)
		}
		return err
	}
	a.logger.Info("payment settled from appointment event",
		"topic", msg.Topic,
		"appointment_id", evt.AppointmentID,
		"payment_status", p.Status,
	)
	return nil
}
