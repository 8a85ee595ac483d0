// Package fanout delivers booking notifications to their recipients over
// push, email and SMS. Every side effect is best effort: failures are
// logged and recorded, never retried.
package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/email"
)

var ErrUnknownRecipient = errors.New("recipient not in directory")

const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Recipient is the contact card kept from identity events.
type Recipient struct {
	UserID    string
	Email     string
	FullName  string
	Phone     string
	Role      string
	Disabled  bool
	UpdatedAt time.Time
}

type Delivery struct {
	NotificationID string
	UserID         string
	AppointmentID  string
	Kind           string
	Channel        string
	Status         string
	ProviderID     string
	Error          string
	CreatedAt      time.Time
}

type Directory interface {
	UpsertRecipient(ctx context.Context, r Recipient) error
	GetRecipient(ctx context.Context, userID string) (Recipient, error)
}

type DeliveryStore interface {
	InsertDelivery(ctx context.Context, d Delivery) error
}

// Publisher pushes a notice to the live streams of one user.
type Publisher interface {
	Publish(ctx context.Context, userID string, n events.Notice) error
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
	ProviderID() string
}

type Texter interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}
