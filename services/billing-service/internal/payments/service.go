package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
)

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

// System is the actor of captures and releases driven by booking events.
var System = auth.Principal{UserID: "system", Role: auth.RoleAdmin}

var errNotConfigured = apperr.Upstream("payments are not configured", nil)

type Options struct {
	// Default return URLs of a checkout, used when the caller sends none.
	SuccessURL string
	CancelURL  string
	Now        func() time.Time
}

type Service struct {
	store        Store
	processor    Processor
	appointments AppointmentReader
	logger       *slog.Logger
	successURL   string
	cancelURL    string
	now          func() time.Time
}

// NewService wires the payment workflow. A nil processor leaves reads and
// webhooks working while every Stripe call fails as not configured.
func NewService(store Store, processor Processor, appointments AppointmentReader, logger *slog.Logger, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:        store,
		processor:    processor,
		appointments: appointments,
		logger:       logger,
		successURL:   opts.SuccessURL,
		cancelURL:    opts.CancelURL,
		now:          now,
	}
}

// Get returns the payment of an appointment to its owner or an admin.
func (s *Service) Get(ctx context.Context, p auth.Principal, appointmentID string) (Payment, error) {
	pay, err := s.load(ctx, appointmentID)
	if err != nil {
		return Payment{}, err
	}
	if !p.Is(auth.RoleAdmin) && pay.OwnerID != p.UserID {
		return Payment{}, apperr.NotFound("payment not found")
	}
	return pay, nil
}

func (s *Service) load(ctx context.Context, appointmentID string) (Payment, error) {
	pay, err := s.store.GetPayment(ctx, appointmentID)
	if err != nil {
		if db.IsNotFound(err) || db.IsInvalidInput(err) {
			return Payment{}, apperr.NotFound("payment not found")
		}
		return Payment{}, apperr.Internal("load payment", err)
	}
	return pay, nil
}

func (s *Service) emit(ctx context.Context, tx Tx, eventType string, p Payment) error {
	evt, err := outbox.NewEvent("payment", p.AppointmentID, eventType, events.Payment{
		AppointmentID:     p.AppointmentID,
		OwnerID:           p.OwnerID,
		PaymentIntentID:   p.PaymentIntentID,
		CheckoutSessionID: p.CheckoutSessionID,
		Status:            string(p.Status),
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		OccurredAt:        s.now(),
	})
	if err != nil {
		return err
	}
	if err := tx.Enqueue(ctx, evt); err != nil {
		return apperr.Upstream("enqueue payment event", err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, tx Tx, eventType string, actor auth.Principal, appointmentID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := httpx.RequestIDFromContext(ctx); reqID != "" {
		metadata["request_id"] = reqID
	}
	return tx.InsertAuditEvent(ctx, AuditEvent{
		EventType:     eventType,
		ActorType:     actorType(actor),
		ActorID:       actor.UserID,
		AppointmentID: appointmentID,
		Metadata:      metadata,
	})
}

func actorType(p auth.Principal) string {
	switch {
	case p == System:
		return "system"
	case p.UserID == "":
		return "provider"
	default:
		return string(p.Role)
	}
}
