package fanout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/email"
)

type Options struct {
	// AppURL links emails back to the appointment page.
	AppURL string
	// SMS is optional; nil disables the channel.
	SMS Texter
	Now func() time.Time
}

type Dispatcher struct {
	bus        Publisher
	directory  Directory
	deliveries DeliveryStore
	mailer     Mailer
	templates  *email.Templates
	sms        Texter
	appURL     string
	now        func() time.Time
	logger     *slog.Logger
}

func NewDispatcher(bus Publisher, dir Directory, deliveries DeliveryStore, mailer Mailer, templates *email.Templates, logger *slog.Logger, opts Options) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		bus:        bus,
		directory:  dir,
		deliveries: deliveries,
		mailer:     mailer,
		templates:  templates,
		sms:        opts.SMS,
		appURL:     strings.TrimRight(opts.AppURL, "/"),
		now:        now,
		logger:     logger,
	}
}

// Dispatch fans out every notice carried by an appointment event.
func (d *Dispatcher) Dispatch(ctx context.Context, evt events.Appointment) {
	for _, n := range evt.Notices {
		if n.UserID == "" {
			continue
		}
		d.push(ctx, n)

		rc, err := d.directory.GetRecipient(ctx, n.UserID)
		switch {
		case errors.Is(err, ErrUnknownRecipient):
			d.logger.Warn("notification recipient unknown", "user_id", n.UserID, "kind", n.Kind)
			d.record(ctx, n, ChannelEmail, StatusSkipped, "", "recipient unknown")
			continue
		case err != nil:
			d.logger.Error("notification recipient lookup failed", "user_id", n.UserID, "err", err)
			d.record(ctx, n, ChannelEmail, StatusFailed, "", err.Error())
			continue
		case rc.Disabled:
			d.record(ctx, n, ChannelEmail, StatusSkipped, "", "recipient disabled")
			continue
		}

		d.email(ctx, evt, n, rc)
		d.text(ctx, n, rc)
	}
}

func (d *Dispatcher) push(ctx context.Context, n events.Notice) {
	if err := d.bus.Publish(ctx, n.UserID, n); err != nil {
		d.logger.Error("notification push failed", "user_id", n.UserID, "kind", n.Kind, "err", err)
		d.record(ctx, n, ChannelPush, StatusFailed, "redis", err.Error())
		return
	}
	d.record(ctx, n, ChannelPush, StatusSent, "redis", "")
}

func (d *Dispatcher) email(ctx context.Context, evt events.Appointment, n events.Notice, rc Recipient) {
	if strings.TrimSpace(rc.Email) == "" {
		d.record(ctx, n, ChannelEmail, StatusSkipped, "", "recipient has no email")
		return
	}
	msg, err := d.templates.Render(n.Kind, d.emailData(evt, n, rc))
	if err != nil {
		d.logger.Error("notification email render failed", "kind", n.Kind, "err", err)
		d.record(ctx, n, ChannelEmail, StatusFailed, "", err.Error())
		return
	}
	msg.To = rc.Email
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("notification email send failed", "user_id", n.UserID, "kind", n.Kind, "err", err)
		d.record(ctx, n, ChannelEmail, StatusFailed, d.mailer.ProviderID(), err.Error())
		return
	}
	d.record(ctx, n, ChannelEmail, StatusSent, d.mailer.ProviderID(), "")
}

func (d *Dispatcher) text(ctx context.Context, n events.Notice, rc Recipient) {
	if d.sms == nil || strings.TrimSpace(rc.Phone) == "" {
		return
	}
	if err := d.sms.Send(ctx, rc.Phone, shortText(n)); err != nil {
		d.logger.Error("notification sms send failed", "user_id", n.UserID, "kind", n.Kind, "err", err)
		d.record(ctx, n, ChannelSMS, StatusFailed, d.sms.ProviderID(), err.Error())
		return
	}
	d.record(ctx, n, ChannelSMS, StatusSent, d.sms.ProviderID(), "")
}

func (d *Dispatcher) emailData(evt events.Appointment, n events.Notice, rc Recipient) email.Data {
	data := email.Data{
		RecipientName:    rc.FullName,
		Title:            n.Title,
		Body:             n.Body,
		PetName:          evt.PetName,
		Date:             evt.Date,
		TimeSlot:         evt.TimeSlot,
		Address:          evt.Address,
		ProposedDate:     evt.ProposedDate,
		ProposedTimeSlot: evt.ProposedTimeSlot,
		Message:          evt.Message,
		Reason:           evt.Reason,
		TotalCents:       evt.TotalCents,
		Currency:         evt.Currency,
	}
	if d.appURL != "" && n.AppointmentID != "" {
		data.AppointmentURL = d.appURL + "/appointments/" + n.AppointmentID
	}
	return data
}

func (d *Dispatcher) record(ctx context.Context, n events.Notice, channel, status, provider, reason string) {
	err := d.deliveries.InsertDelivery(ctx, Delivery{
		NotificationID: n.ID,
		UserID:         n.UserID,
		AppointmentID:  n.AppointmentID,
		Kind:           n.Kind,
		Channel:        channel,
		Status:         status,
		ProviderID:     provider,
		Error:          reason,
		CreatedAt:      d.now(),
	})
	if err != nil {
		d.logger.Error("failed to record delivery", "notification_id", n.ID, "channel", channel, "err", err)
	}
}

const smsLimit = 160

func shortText(n events.Notice) string {
	s := "VetCall: " + n.Title + ". " + n.Body
	r := []rune(s)
	if len(r) <= smsLimit {
		return s
	}
	return string(r[:smsLimit-3]) + "..."
}
