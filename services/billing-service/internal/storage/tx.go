package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
)

type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, appointmentID string) (payments.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE appointment_id = $1 FOR UPDATE`, appointmentID))
}

func (t *txRepo) UpsertPayment(ctx context.Context, p payments.Payment) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payments (appointment_id, owner_id, status, checkout_session_id, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (appointment_id)
		DO UPDATE SET status = EXCLUDED.status,
		              checkout_session_id = EXCLUDED.checkout_session_id,
		              amount_cents = EXCLUDED.amount_cents,
		              currency = EXCLUDED.currency,
		              payment_intent_id = NULL,
		              updated_at = now()
		WHERE payments.status IN ('checkout_open', 'expired')
	`, p.AppointmentID, p.OwnerID, string(p.Status), nullIfEmpty(p.CheckoutSessionID), p.AmountCents, p.Currency)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) TransitionPayment(ctx context.Context, appointmentID string, from []payments.Status, to payments.Status, paymentIntentID string, at time.Time) (bool, error) {
	fromText := make([]string, len(from))
	for i, s := range from {
		fromText[i] = string(s)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET status = $3::text,
		    payment_intent_id = COALESCE(NULLIF($4::text, ''), payment_intent_id),
		    authorized_at = CASE WHEN $3::text = 'authorized' THEN $5 ELSE authorized_at END,
		    captured_at = CASE WHEN $3::text IN ('captured', 'paid') THEN $5 ELSE captured_at END,
		    released_at = CASE WHEN $3::text = 'released' THEN $5 ELSE released_at END,
		    updated_at = now()
		WHERE appointment_id = $1 AND status = ANY($2)
	`, appointmentID, fromText, string(to), paymentIntentID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) UpsertCheckoutSession(ctx context.Context, s payments.CheckoutSession) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO checkout_sessions (stripe_session_id, appointment_id, owner_id, status, url, return_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stripe_session_id)
		DO UPDATE SET status = EXCLUDED.status,
		              url = EXCLUDED.url,
		              updated_at = now()
	`, s.StripeSessionID, s.AppointmentID, s.OwnerID, s.Status, nullIfEmpty(s.URL), nullIfEmpty(s.ReturnToken))
	return err
}

func (t *txRepo) MarkCheckoutSessionCompleted(ctx context.Context, stripeSessionID string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = now()
		WHERE stripe_session_id = $1
	`, stripeSessionID, at)
	return err
}

func (t *txRepo) MarkCheckoutSessionExpired(ctx context.Context, stripeSessionID string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'expired',
		    expired_at = $2,
		    updated_at = now()
		WHERE stripe_session_id = $1 AND status <> 'completed'
	`, stripeSessionID, at)
	return err
}

// AckCheckoutReturn only touches the session whose return token matches.
// The webhook stays authoritative, so a completed session is never marked
// canceled.
func (t *txRepo) AckCheckoutReturn(ctx context.Context, stripeSessionID, token, result string, at time.Time) (bool, error) {
	if strings.TrimSpace(result) == "" {
		result = "unknown"
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET return_seen_at = $4,
		    status = CASE
		      WHEN $3 = 'cancel' AND status <> 'completed' THEN 'canceled'
		      ELSE status
		    END,
		    canceled_at = CASE
		      WHEN $3 = 'cancel' AND status <> 'completed' THEN COALESCE(canceled_at, $4)
		      ELSE canceled_at
		    END,
		    updated_at = now()
		WHERE stripe_session_id = $1 AND return_token = $2
	`, stripeSessionID, token, result, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) InsertProviderEvent(ctx context.Context, evt payments.ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return payments.ErrDuplicateProviderEvent
	}
	return nil
}

func (t *txRepo) InsertAuditEvent(ctx context.Context, evt payments.AuditEvent) error {
	metadata := evt.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_type, actor_id, appointment_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.EventType, evt.ActorType, nullIfEmpty(evt.ActorID), nullIfEmpty(evt.AppointmentID), metadata)
	return err
}

func (t *txRepo) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
