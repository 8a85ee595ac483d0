package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
)

// Repository is the Postgres implementation of workflow.Store.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository()}
}

func (r *Repository) InTx(ctx context.Context, fn func(workflow.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx, outbox: r.outbox})
	})
}

const appointmentColumns = `
	id::text, owner_id::text, COALESCE(vet_id::text, ''), COALESCE(pet_id::text, ''),
	COALESCE(appt_date, ''), COALESCE(time_slot, ''), COALESCE(address, ''), COALESCE(notes, ''),
	services, total_cents, currency, status, payment_status,
	COALESCE(payment_intent_id, ''), COALESCE(checkout_session_id, ''),
	COALESCE(proposed_date, ''), COALESCE(proposed_time_slot, ''), COALESCE(proposed_by::text, ''),
	COALESCE(proposal_message, ''), COALESCE(decline_reason, ''),
	version, confirmed_at, completed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.VetID, &a.PetID,
		&a.Date, &a.TimeSlot, &a.Address, &a.Notes,
		&a.Services, &a.TotalCents, &a.Currency, &a.Status, &a.PaymentStatus,
		&a.PaymentIntentID, &a.CheckoutSessionID,
		&a.ProposedDate, &a.ProposedTimeSlot, &a.ProposedBy,
		&a.ProposalMessage, &a.DeclineReason,
		&a.Version, &a.ConfirmedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if a.Services == nil {
		a.Services = []model.LineItem{}
	}
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r *Repository) ListAppointments(ctx context.Context, q workflow.ListQuery) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.OwnerID != "" {
		where = append(where, "owner_id = "+arg(q.OwnerID))
	}
	if q.VetID != "" {
		cond := "vet_id = " + arg(q.VetID)
		if q.IncludeOpen {
			cond = "(" + cond + " OR (vet_id IS NULL AND status IN ('waiting_for_vet', 'time_proposed')))"
		}
		where = append(where, cond)
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(string(q.Status)))
	}
	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY updated_at DESC LIMIT " + arg(q.Limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *Repository) ListProposals(ctx context.Context, appointmentID string) ([]model.TimeProposal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+proposalColumns+`
		FROM time_proposals
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TimeProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetClinicalReport(ctx context.Context, appointmentID string) (model.ClinicalReport, error) {
	var rep model.ClinicalReport
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, appointment_id::text, vet_id::text, diagnosis, treatment, medications,
		       follow_up_notes, follow_up_needed, created_at
		FROM clinical_reports
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID).Scan(&rep.ID, &rep.AppointmentID, &rep.VetID, &rep.Diagnosis, &rep.Treatment,
		&rep.Medications, &rep.FollowUpNotes, &rep.FollowUpNeeded, &rep.CreatedAt)
	return rep, err
}

func (r *Repository) BookedSlots(ctx context.Context, vetID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE vet_id = $1 AND appt_date = $2 AND status IN ('confirmed', 'in_progress')
	`, vetID, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) CreatePet(ctx context.Context, p model.Pet) (model.Pet, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pets (owner_id, name, species, breed, birth_date, weight_kg, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at
	`, p.OwnerID, p.Name, p.Species, p.Breed, nullIfEmpty(p.BirthDate), p.WeightKg, p.Notes).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

const petColumns = `id::text, owner_id::text, name, species, breed, COALESCE(birth_date, ''), weight_kg, notes, created_at`

func scanPet(row pgx.Row) (model.Pet, error) {
	var p model.Pet
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.BirthDate, &p.WeightKg, &p.Notes, &p.CreatedAt)
	return p, err
}

func (r *Repository) ListPets(ctx context.Context, ownerID string) ([]model.Pet, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, now time.Time, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, COALESCE(appointment_id::text, ''), kind, title, body,
		       read_at, expires_at, created_at
		FROM notifications
		WHERE user_id = $1
		  AND expires_at > $2
		  AND ($3 = false OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $4
	`, userID, now, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.AppointmentID, &n.Kind, &n.Title, &n.Body,
			&n.ReadAt, &n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`, id, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $2 WHERE user_id = $1 AND read_at IS NULL
	`, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredNotifications purges rows past their expiry and reports how
// many were removed.
func (r *Repository) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isNoRows(err error) bool { return db.IsNotFound(err) }

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
