package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

// txRepo runs the workflow writes on one pgx transaction.
type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txRepo) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

// UpsertDraft relies on appointments_one_draft_per_owner, a unique index on
// owner_id restricted to pending rows, so concurrent callers converge on the
// same draft.
func (t *txRepo) UpsertDraft(ctx context.Context, ownerID, currency string) (model.Appointment, error) {
	return scanAppointment(t.tx.QueryRow(ctx, `
		INSERT INTO appointments (owner_id, currency, status, payment_status)
		VALUES ($1, $2, 'pending', 'unpaid')
		ON CONFLICT (owner_id) WHERE status = 'pending'
		DO UPDATE SET updated_at = appointments.updated_at
		RETURNING `+appointmentColumns, ownerID, currency))
}

func (t *txRepo) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET vet_id = $3,
			pet_id = $4,
			appt_date = $5,
			time_slot = $6,
			address = $7,
			notes = $8,
			services = $9,
			total_cents = $10,
			status = $11,
			payment_status = $12,
			payment_intent_id = $13,
			checkout_session_id = $14,
			proposed_date = $15,
			proposed_time_slot = $16,
			proposed_by = $17,
			proposal_message = $18,
			decline_reason = $19,
			confirmed_at = $20,
			completed_at = $21,
			updated_at = $22,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`, a.ID, a.Version,
		nullIfEmpty(a.VetID), nullIfEmpty(a.PetID), nullIfEmpty(a.Date), nullIfEmpty(a.TimeSlot),
		a.Address, a.Notes, a.Services, a.TotalCents,
		string(a.Status), string(a.PaymentStatus),
		nullIfEmpty(a.PaymentIntentID), nullIfEmpty(a.CheckoutSessionID),
		nullIfEmpty(a.ProposedDate), nullIfEmpty(a.ProposedTimeSlot), nullIfEmpty(a.ProposedBy),
		a.ProposalMessage, a.DeclineReason,
		a.ConfirmedAt, a.CompletedAt, a.UpdatedAt,
	).Scan(&a.Version)
	if err != nil {
		if isNoRows(err) {
			return model.ErrVersionConflict
		}
		return err
	}
	return nil
}

func (t *txRepo) DeleteAppointment(ctx context.Context, id string, version int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrVersionConflict
	}
	return nil
}

func (t *txRepo) GetPet(ctx context.Context, id string) (model.Pet, error) {
	return scanPet(t.tx.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE id = $1`, id))
}

const proposalColumns = `id::text, appointment_id::text, vet_id::text, proposed_date, time_slot, message, status, created_at, updated_at`

func scanProposal(row pgx.Row) (model.TimeProposal, error) {
	var p model.TimeProposal
	err := row.Scan(&p.ID, &p.AppointmentID, &p.VetID, &p.Date, &p.TimeSlot, &p.Message, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// UpsertProposal keeps one proposal per (appointment, vet). A settled
// proposal is returned unchanged.
func (t *txRepo) UpsertProposal(ctx context.Context, p model.TimeProposal) (model.TimeProposal, error) {
	out, err := scanProposal(t.tx.QueryRow(ctx, `
		INSERT INTO time_proposals (appointment_id, vet_id, proposed_date, time_slot, message, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (appointment_id, vet_id)
		DO UPDATE SET proposed_date = EXCLUDED.proposed_date,
		              time_slot = EXCLUDED.time_slot,
		              message = EXCLUDED.message,
		              updated_at = now()
		WHERE time_proposals.status = 'pending'
		RETURNING `+proposalColumns,
		p.AppointmentID, p.VetID, p.Date, p.TimeSlot, p.Message, string(p.Status)))
	if isNoRows(err) {
		return scanProposal(t.tx.QueryRow(ctx, `SELECT `+proposalColumns+`
			FROM time_proposals WHERE appointment_id = $1 AND vet_id = $2`, p.AppointmentID, p.VetID))
	}
	return out, err
}

func (t *txRepo) GetPendingProposal(ctx context.Context, appointmentID, proposalID, vetID string) (model.TimeProposal, error) {
	if proposalID != "" {
		return scanProposal(t.tx.QueryRow(ctx, `SELECT `+proposalColumns+`
			FROM time_proposals
			WHERE appointment_id = $1 AND id = $2 AND status = 'pending'
			FOR UPDATE`, appointmentID, proposalID))
	}
	return scanProposal(t.tx.QueryRow(ctx, `SELECT `+proposalColumns+`
		FROM time_proposals
		WHERE appointment_id = $1 AND vet_id = $2 AND status = 'pending'
		FOR UPDATE`, appointmentID, vetID))
}

func (t *txRepo) SetProposalStatus(ctx context.Context, id string, status model.ProposalStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_proposals SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (t *txRepo) DeclinePendingProposals(ctx context.Context, appointmentID, exceptID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_proposals
		SET status = 'declined', updated_at = now()
		WHERE appointment_id = $1
		  AND status = 'pending'
		  AND ($2::uuid IS NULL OR id <> $2::uuid)
	`, appointmentID, nullIfEmpty(exceptID))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) DeleteProposals(ctx context.Context, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM time_proposals WHERE appointment_id = $1`, appointmentID)
	return err
}

func (t *txRepo) InsertClinicalReport(ctx context.Context, r model.ClinicalReport) (model.ClinicalReport, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO clinical_reports
			(appointment_id, vet_id, diagnosis, treatment, medications, follow_up_notes, follow_up_needed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, r.AppointmentID, r.VetID, r.Diagnosis, r.Treatment, r.Medications, r.FollowUpNotes,
		r.FollowUpNeeded, r.CreatedAt).Scan(&r.ID)
	return r, err
}

func (t *txRepo) DeleteClinicalReports(ctx context.Context, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM clinical_reports WHERE appointment_id = $1`, appointmentID)
	return err
}

func (t *txRepo) InsertNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO notifications (user_id, appointment_id, kind, title, body, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, n.UserID, nullIfEmpty(n.AppointmentID), n.Kind, n.Title, n.Body, n.ExpiresAt, n.CreatedAt).Scan(&n.ID)
	return n, err
}

func (t *txRepo) DeleteNotifications(ctx context.Context, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM notifications WHERE appointment_id = $1`, appointmentID)
	return err
}

func (t *txRepo) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
