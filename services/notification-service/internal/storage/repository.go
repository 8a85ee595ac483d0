package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/services/notification-service/internal/fanout"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ fanout.Directory     = (*Repository)(nil)
	_ fanout.DeliveryStore = (*Repository)(nil)
)

// UpsertRecipient keeps the newest copy of a user. Older identity events
// arriving late leave the row alone.
func (r *Repository) UpsertRecipient(ctx context.Context, rc fanout.Recipient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recipients (user_id, email, full_name, phone, role, disabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
		    full_name = EXCLUDED.full_name,
		    phone = EXCLUDED.phone,
		    role = EXCLUDED.role,
		    disabled = EXCLUDED.disabled,
		    updated_at = EXCLUDED.updated_at
		WHERE recipients.updated_at <= EXCLUDED.updated_at
	`, rc.UserID, rc.Email, rc.FullName, rc.Phone, rc.Role, rc.Disabled, rc.UpdatedAt)
	return err
}

func (r *Repository) GetRecipient(ctx context.Context, userID string) (fanout.Recipient, error) {
	var rc fanout.Recipient
	err := r.pool.QueryRow(ctx, `
		SELECT user_id::text, email, full_name, phone, role, disabled, updated_at
		FROM recipients
		WHERE user_id = $1
	`, userID).Scan(&rc.UserID, &rc.Email, &rc.FullName, &rc.Phone, &rc.Role, &rc.Disabled, &rc.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return fanout.Recipient{}, fanout.ErrUnknownRecipient
		}
		return fanout.Recipient{}, err
	}
	return rc, nil
}

func (r *Repository) InsertDelivery(ctx context.Context, d fanout.Delivery) error {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries (notification_id, user_id, appointment_id, kind, channel, status, provider_id, error, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
	`, d.NotificationID, d.UserID, d.AppointmentID, d.Kind, d.Channel, d.Status, d.ProviderID, d.Error, created)
	return err
}
