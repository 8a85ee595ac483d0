package workflow

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

// ListQuery scopes an appointment listing. VetID with IncludeOpen also
// returns unassigned requests still waiting for a vet.
type ListQuery struct {
	OwnerID     string
	VetID       string
	IncludeOpen bool
	Status      model.Status
	Limit       int
}

// Store is the persistence boundary of the workflow. Lookups of missing rows
// return errors for which db.IsNotFound is true, and lookups by a malformed
// id return errors for which db.IsInvalidInput is true; UpdateAppointment and
// DeleteAppointment return model.ErrVersionConflict when the row's version
// no longer matches.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, q ListQuery) ([]model.Appointment, error)
	ListProposals(ctx context.Context, appointmentID string) ([]model.TimeProposal, error)
	GetClinicalReport(ctx context.Context, appointmentID string) (model.ClinicalReport, error)
	BookedSlots(ctx context.Context, vetID, date string) ([]string, error)

	CreatePet(ctx context.Context, p model.Pet) (model.Pet, error)
	ListPets(ctx context.Context, ownerID string) ([]model.Pet, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool, now time.Time, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// Tx groups the writes of one workflow operation.
type Tx interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpsertDraft(ctx context.Context, ownerID, currency string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
	DeleteAppointment(ctx context.Context, id string, version int64) error

	GetPet(ctx context.Context, id string) (model.Pet, error)

	UpsertProposal(ctx context.Context, p model.TimeProposal) (model.TimeProposal, error)
	GetPendingProposal(ctx context.Context, appointmentID, proposalID, vetID string) (model.TimeProposal, error)
	SetProposalStatus(ctx context.Context, id string, status model.ProposalStatus) error
	DeclinePendingProposals(ctx context.Context, appointmentID, exceptID string) (int64, error)
	DeleteProposals(ctx context.Context, appointmentID string) error

	InsertClinicalReport(ctx context.Context, r model.ClinicalReport) (model.ClinicalReport, error)
	DeleteClinicalReports(ctx context.Context, appointmentID string) error

	InsertNotification(ctx context.Context, n model.Notification) (model.Notification, error)
	DeleteNotifications(ctx context.Context, appointmentID string) error

	Enqueue(ctx context.Context, evt outbox.Event) error
}
