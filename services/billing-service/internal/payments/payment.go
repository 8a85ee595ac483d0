// Package payments owns the authorize-then-capture lifecycle of an
// appointment's payment: Stripe checkout with manual capture, the webhook
// that records the authorization, and the capture or release that follows
// the visit.
package payments

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/outbox"
)

type Status string

const (
	StatusCheckoutOpen Status = "checkout_open"
	StatusAuthorized   Status = "authorized"
	StatusCaptured     Status = "captured"
	StatusPaid         Status = "paid"
	StatusReleased     Status = "released"
	StatusExpired      Status = "expired"
)

// Settled reports whether the money has been taken.
func (s Status) Settled() bool {
	return s == StatusCaptured || s == StatusPaid
}

// Payment is one appointment's payment. There is at most one per
// appointment; a new checkout for the same appointment replaces an open or
// expired one.
type Payment struct {
	AppointmentID      string
	OwnerID            string
	Status             Status
	PaymentIntentID    string
	CheckoutSessionID  string
	AmountCents        int64
	Currency           string
	CaptureRequestedAt *time.Time
	AuthorizedAt       *time.Time
	CapturedAt         *time.Time
	ReleasedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type CheckoutSession struct {
	StripeSessionID string
	AppointmentID   string
	OwnerID         string
	Status          string
	URL             string
	ReturnToken     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	CanceledAt      *time.Time
	ReturnSeenAt    *time.Time
	ExpiredAt       *time.Time
}

// Open reports whether the customer can still pay through the session.
func (s CheckoutSession) Open() bool {
	return s.Status == "created" && s.URL != ""
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

type AuditEvent struct {
	EventType     string
	ActorType     string
	ActorID       string
	AppointmentID string
	Metadata      map[string]any
}

// Store is the persistence boundary. Lookups of missing rows return errors
// for which db.IsNotFound is true.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	GetPayment(ctx context.Context, appointmentID string) (Payment, error)
	GetCheckoutSession(ctx context.Context, stripeSessionID string) (CheckoutSession, error)
	MarkCaptureRequested(ctx context.Context, appointmentID string, at time.Time) error
	// ListCaptureCandidates returns authorized payments whose capture was
	// requested before the cutoff, oldest first.
	ListCaptureCandidates(ctx context.Context, requestedBefore time.Time, limit int) ([]Payment, error)
}

type Tx interface {
	GetPaymentForUpdate(ctx context.Context, appointmentID string) (Payment, error)
	// UpsertPayment opens or replaces the checkout of a payment. It reports
	// false, writing nothing, when the existing payment is past checkout.
	UpsertPayment(ctx context.Context, p Payment) (bool, error)
	// TransitionPayment moves the payment to `to` only when its current
	// status is one of `from`; it reports whether a row changed.
	TransitionPayment(ctx context.Context, appointmentID string, from []Status, to Status, paymentIntentID string, at time.Time) (bool, error)

	UpsertCheckoutSession(ctx context.Context, s CheckoutSession) error
	MarkCheckoutSessionCompleted(ctx context.Context, stripeSessionID string, at time.Time) error
	MarkCheckoutSessionExpired(ctx context.Context, stripeSessionID string, at time.Time) error
	AckCheckoutReturn(ctx context.Context, stripeSessionID, token, result string, at time.Time) (bool, error)

	InsertProviderEvent(ctx context.Context, evt ProviderEvent) error
	InsertAuditEvent(ctx context.Context, evt AuditEvent) error
	Enqueue(ctx context.Context, evt outbox.Event) error
}
