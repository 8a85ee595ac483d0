package storage

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
)

// Repository is the Postgres implementation of payments.Store.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository()}
}

func (r *Repository) InTx(ctx context.Context, fn func(payments.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx, outbox: r.outbox})
	})
}

var _ payments.Store = (*Repository)(nil)

const paymentColumns = `
	appointment_id::text, owner_id::text, status,
	COALESCE(payment_intent_id, ''), COALESCE(checkout_session_id, ''),
	amount_cents, currency,
	capture_requested_at, authorized_at, captured_at, released_at, created_at, updated_at`

func scanPayment(row pgx.Row) (payments.Payment, error) {
	var p payments.Payment
	err := row.Scan(
		&p.AppointmentID, &p.OwnerID, &p.Status,
		&p.PaymentIntentID, &p.CheckoutSessionID,
		&p.AmountCents, &p.Currency,
		&p.CaptureRequestedAt, &p.AuthorizedAt, &p.CapturedAt, &p.ReleasedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *Repository) GetPayment(ctx context.Context, appointmentID string) (payments.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE appointment_id = $1`, appointmentID))
}

func (r *Repository) MarkCaptureRequested(ctx context.Context, appointmentID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET capture_requested_at = COALESCE(capture_requested_at, $2),
		    updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, at)
	return err
}

func (r *Repository) ListCaptureCandidates(ctx context.Context, requestedBefore time.Time, limit int) ([]payments.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = 'authorized'
		  AND capture_requested_at IS NOT NULL
		  AND capture_requested_at <= $1
		ORDER BY capture_requested_at
		LIMIT $2
	`, requestedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payments.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetCheckoutSession(ctx context.Context, stripeSessionID string) (payments.CheckoutSession, error) {
	var s payments.CheckoutSession
	err := r.pool.QueryRow(ctx, `
		SELECT stripe_session_id, appointment_id::text, owner_id::text, status,
		       COALESCE(url, ''), COALESCE(return_token, ''), created_at, updated_at,
		       completed_at, canceled_at, return_seen_at, expired_at
		FROM checkout_sessions
		WHERE stripe_session_id = $1
	`, stripeSessionID).Scan(
		&s.StripeSessionID,
		&s.AppointmentID,
		&s.OwnerID,
		&s.Status,
		&s.URL,
		&s.ReturnToken,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
		&s.CanceledAt,
		&s.ReturnSeenAt,
		&s.ExpiredAt,
	)
	if err != nil {
		return payments.CheckoutSession{}, err
	}
	return s, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
