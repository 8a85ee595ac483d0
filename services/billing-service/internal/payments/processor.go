package payments

import (
	"context"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type LineItem struct {
	Name        string
	AmountCents int64
}

type CheckoutRequest struct {
	AppointmentID  string
	OwnerID        string
	Currency       string
	Items          []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type Session struct {
	ID  string
	URL string
}

type Intent struct {
	ID     string
	Status stripe.PaymentIntentStatus
}

// Processor is the card processor as billing uses it.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
	CaptureIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error)
	CancelIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
}

// Appointment is booking's view of an appointment, as billing reads it
// before opening a checkout.
type Appointment struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Services      []BookedService `json:"services"`
	TotalCents    int64           `json:"total_cents"`
	Currency      string          `json:"currency"`
	MissingFields []string        `json:"missing_fields"`
	Version       int64           `json:"version"`
}

type BookedService struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// AppointmentReader loads an appointment on behalf of the caller, so
// booking applies its own visibility rules.
type AppointmentReader interface {
	GetAppointment(ctx context.Context, p auth.Principal, id string) (Appointment, error)
}

// StripeProcessor talks to Stripe through an injected client.
type StripeProcessor struct {
	api *client.API
}

func NewStripeProcessor(api *client.API) *StripeProcessor {
	return &StripeProcessor{api: api}
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	metadata := map[string]string{
		"appointment_id": req.AppointmentID,
		"owner_id":       req.OwnerID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.AppointmentID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
			Metadata:      metadata,
		},
	}
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(item.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}
	params.Context = ctx
	params.AddExpand("url")
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProcessor) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := p.api.CheckoutSessions.Expire(sessionID, params)
	return err
}

func (p *StripeProcessor) CaptureIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := p.api.PaymentIntents.Capture(intentID, params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, Status: pi.Status}, nil
}

func (p *StripeProcessor) CancelIntent(ctx context.Context, intentID, idempotencyKey string) (Intent, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := p.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, Status: pi.Status}, nil
}

func (p *StripeProcessor) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, Status: pi.Status}, nil
}
