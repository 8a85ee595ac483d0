// Package consumer feeds booking and identity events into the fan-out.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type Fanout interface {
	Dispatch(ctx context.Context, evt events.Appointment)
	ApplyUser(ctx context.Context, u events.User) error
}

type Notifications struct {
	fanout Fanout
	logger *slog.Logger
}

func New(fanout Fanout, logger *slog.Logger) *Notifications {
	return &Notifications{fanout: fanout, logger: logger}
}

func (n *Notifications) Register(c *kafkax.Consumer) {
	for _, topic := range events.AppointmentTopics {
		c.Handle(topic, n.appointment)
	}
	c.Handle(events.UserRegistered, n.user)
	c.Handle(events.UserUpdated, n.user)
}

// appointment never asks for a retry: a redelivered event would repeat the
// pushes and emails that already went out.
func (n *Notifications) appointment(ctx context.Context, msg kafka.Message) error {
	var evt events.Appointment
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("%w: decode appointment event: %v", kafkax.ErrSkip, err)
	}
	n.fanout.Dispatch(ctx, evt)
	n.logger.Info("appointment notices dispatched",
		"topic", msg.Topic,
		"appointment_id", evt.AppointmentID,
		"notices", len(evt.Notices),
	)
	return nil
}

func (n *Notifications) user(ctx context.Context, msg kafka.Message) error {
	var u events.User
	if err := json.Unmarshal(msg.Value, &u); err != nil {
		return fmt.Errorf("%w: decode user event: %v", kafkax.ErrSkip, err)
	}
	if u.UserID == "" {
		return fmt.Errorf("%w: user event without user_id", kafkax.ErrSkip)
	}
	if err := n.fanout.ApplyUser(ctx, u); err != nil {
		return fmt.Errorf("apply user %s: %w", u.UserID, err)
	}
	return nil
}
