package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
)

type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txRepo) CreateUser(ctx context.Context, u accounts.User) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, full_name, phone, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.PasswordHash, string(u.Role), u.FullName, u.Phone, u.Disabled, u.CreatedAt, u.UpdatedAt)
	if db.IsUniqueViolation(err, "users_email_key") {
		return accounts.ErrEmailTaken
	}
	return err
}

func (t *txRepo) GetUserByEmail(ctx context.Context, email string) (accounts.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (t *txRepo) GetUserForUpdate(ctx context.Context, id string) (accounts.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateUser(ctx context.Context, u accounts.User) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users
		SET role = $2, full_name = $3, phone = $4, disabled = $5, updated_at = $6
		WHERE id = $1
	`, u.ID, string(u.Role), u.FullName, u.Phone, u.Disabled, u.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (t *txRepo) CreateRefreshToken(ctx context.Context, rt accounts.RefreshToken) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rt.ID, rt.UserID, rt.Hash, rt.ExpiresAt, rt.CreatedAt)
	return err
}

func (t *txRepo) GetRefreshTokenForUpdate(ctx context.Context, hash string) (accounts.RefreshToken, error) {
	var rt accounts.RefreshToken
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, user_id::text, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, hash).Scan(&rt.ID, &rt.UserID, &rt.Hash, &rt.ExpiresAt, &rt.RevokedAt, &rt.CreatedAt)
	return rt, err
}

func (t *txRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

func (t *txRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) InsertWaitlistEntry(ctx context.Context, e accounts.WaitlistEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vet_waitlist (id, email, full_name, phone, license_number, service_area, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.Email, e.FullName, e.Phone, e.LicenseNumber, e.ServiceArea, e.Message, string(e.Status), e.CreatedAt, e.UpdatedAt)
	if db.IsUniqueViolation(err, "vet_waitlist_email_key") {
		return accounts.ErrEmailTaken
	}
	return err
}

func (t *txRepo) GetWaitlistEntryForUpdate(ctx context.Context, id string) (accounts.WaitlistEntry, error) {
	return scanWaitlistEntry(t.tx.QueryRow(ctx, `SELECT `+waitlistColumns+` FROM vet_waitlist WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) GetApprovedWaitlistEntry(ctx context.Context, email string) (accounts.WaitlistEntry, error) {
	return scanWaitlistEntry(t.tx.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM vet_waitlist
		WHERE lower(email) = lower($1) AND status = 'approved' AND user_id IS NULL
		FOR UPDATE
	`, email))
}

func (t *txRepo) UpdateWaitlistEntry(ctx context.Context, e accounts.WaitlistEntry) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE vet_waitlist
		SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = $5, user_id = $6, updated_at = $7
		WHERE id = $1
	`, e.ID, string(e.Status), nullIfEmpty(e.ReviewedBy), e.ReviewNote, e.ReviewedAt, nullIfEmpty(e.UserID), e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (t *txRepo) InsertAudit(ctx context.Context, e accounts.AuditEvent) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_id, subject_id, metadata)
		VALUES ($1, $2, $3, $4)
	`, e.EventType, nullIfEmpty(e.ActorID), nullIfEmpty(e.SubjectID), metadata)
	return err
}

func (t *txRepo) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
