package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
)

// Repository is the Postgres implementation of accounts.Store.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository()}
}

func (r *Repository) InTx(ctx context.Context, fn func(accounts.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx, outbox: r.outbox})
	})
}

var _ accounts.Store = (*Repository)(nil)

const userColumns = `id::text, email, password_hash, role, full_name, phone, disabled, created_at, updated_at`

func scanUser(row pgx.Row) (accounts.User, error) {
	var u accounts.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FullName, &u.Phone, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const waitlistColumns = `
	id::text, email, full_name, phone, license_number, service_area, message, status,
	COALESCE(reviewed_by::text, ''), review_note, reviewed_at, COALESCE(user_id::text, ''),
	created_at, updated_at`

func scanWaitlistEntry(row pgx.Row) (accounts.WaitlistEntry, error) {
	var e accounts.WaitlistEntry
	err := row.Scan(
		&e.ID, &e.Email, &e.FullName, &e.Phone, &e.LicenseNumber, &e.ServiceArea, &e.Message, &e.Status,
		&e.ReviewedBy, &e.ReviewNote, &e.ReviewedAt, &e.UserID,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (accounts.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (accounts.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *Repository) ListUsers(ctx context.Context, q accounts.UserQuery) ([]accounts.User, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.Role != "" {
		where = append(where, "role = "+arg(string(q.Role)))
	}
	if q.Email != "" {
		where = append(where, "lower(email) = lower("+arg(q.Email)+")")
	}
	if q.Disabled != nil {
		where = append(where, "disabled = "+arg(*q.Disabled))
	}
	sql := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id LIMIT ` + arg(q.Limit) + ` OFFSET ` + arg(q.Offset)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) ListWaitlist(ctx context.Context, status accounts.WaitlistStatus, limit int) ([]accounts.WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM vet_waitlist
		WHERE $1 = '' OR status = $1
		ORDER BY created_at
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) ListAudit(ctx context.Context, limit int) ([]accounts.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id::text, ''), COALESCE(subject_id, ''), metadata, created_at
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accounts.AuditEvent
	for rows.Next() {
		var (
			e   accounts.AuditEvent
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.SubjectID, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
