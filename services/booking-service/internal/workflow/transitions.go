package workflow

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

// Accept assigns the calling vet and confirms the visit. With start set the
// visit goes straight to in_progress.
func (s *Service) Accept(ctx context.Context, p auth.Principal, id string, start bool, expected int64) (model.Appointment, error) {
	if err := requireRole(p, "accepting an appointment", auth.RoleVet); err != nil {
		return model.Appointment{}, err
	}
	return s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		if a.Status != model.StatusWaitingForVet {
			return apperr.Conflict("only appointments waiting for a vet can be accepted")
		}
		prev := a.Status
		to := model.StatusConfirmed
		if start {
			to = model.StatusInProgress
		}
		if err := move(a, to); err != nil {
			return err
		}
		now := s.now()
		a.VetID = p.UserID
		a.ConfirmedAt = &now
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentAccepted,
			previous:  prev,
			notify:    []recipient{{userID: a.OwnerID, kind: KindAccepted}},
		})
	})
}

func (s *Service) Decline(ctx context.Context, p auth.Principal, id string, reason string, expected int64) (model.Appointment, error) {
	if err := requireRole(p, "declining an appointment", auth.RoleVet); err != nil {
		return model.Appointment{}, err
	}
	reason = strings.TrimSpace(reason)
	return s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		prev := a.Status
		if err := move(a, model.StatusDeclined); err != nil {
			return err
		}
		a.DeclineReason = reason
		if a.VetID == "" {
			a.VetID = p.UserID
		}
		a.ClearProposal()
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		if _, err := tx.DeclinePendingProposals(ctx, a.ID, ""); err != nil {
			return err
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentDeclined,
			previous:  prev,
			reason:    reason,
			notify:    []recipient{{userID: a.OwnerID, kind: KindDeclined}},
		})
	})
}

// Propose records the vet's alternate date and time. A vet proposing again
// for the same appointment replaces their pending proposal.
func (s *Service) Propose(ctx context.Context, p auth.Principal, id, date, timeSlot, message string, expected int64) (model.Appointment, error) {
	if err := requireRole(p, "proposing a time", auth.RoleVet); err != nil {
		return model.Appointment{}, err
	}
	date, timeSlot = strings.TrimSpace(date), strings.TrimSpace(timeSlot)
	if date == "" || timeSlot == "" {
		return model.Appointment{}, apperr.Validation("proposed date and time are required")
	}
	if !availability.ValidDate(date) {
		return model.Appointment{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	if !availability.ValidWindow(timeSlot) {
		return model.Appointment{}, apperr.Validation(`time_slot must look like "10:00 - 12:00 PM"`)
	}
	message = strings.TrimSpace(message)

	return s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		prev := a.Status
		if err := move(a, model.StatusTimeProposed); err != nil {
			return err
		}
		if _, err := tx.UpsertProposal(ctx, model.TimeProposal{
			AppointmentID: a.ID,
			VetID:         p.UserID,
			Date:          date,
			TimeSlot:      timeSlot,
			Message:       message,
			Status:        model.ProposalPending,
		}); err != nil {
			return err
		}
		a.ProposedDate = date
		a.ProposedTimeSlot = timeSlot
		a.ProposedBy = p.UserID
		a.ProposalMessage = message
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentTimeProposed,
			previous:  prev,
			message:   message,
			notify:    []recipient{{userID: a.OwnerID, kind: KindTimeProposed}},
		})
	})
}

type Decision string

const (
	AcceptProposal  Decision = "accept_proposal"
	DeclineProposal Decision = "decline_proposal"
)

// OwnerRespond settles a time proposal. Accepting copies the proposal into
// the appointment and declines every other pending proposal; declining
// cancels the request. proposalID picks a specific proposal, otherwise the
// latest one shown on the appointment is used.
func (s *Service) OwnerRespond(ctx context.Context, p auth.Principal, id string, decision Decision, proposalID string, expected int64) (model.Appointment, error) {
	if err := requireRole(p, "responding to a proposal", auth.RolePetOwner); err != nil {
		return model.Appointment{}, err
	}
	if decision != AcceptProposal && decision != DeclineProposal {
		return model.Appointment{}, apperr.Validation("decision must be accept_proposal or decline_proposal")
	}
	return s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		if a.Status != model.StatusTimeProposed {
			return apperr.Conflict("appointment has no open time proposal")
		}
		prev := a.Status
		proposedBy := a.ProposedBy

		if decision == DeclineProposal {
			if err := move(a, model.StatusCancelled); err != nil {
				return err
			}
			a.ClearProposal()
			if err := s.update(ctx, tx, a); err != nil {
				return err
			}
			if _, err := tx.DeclinePendingProposals(ctx, a.ID, ""); err != nil {
				return err
			}
			return s.emit(ctx, tx, *a, change{
				eventType: events.AppointmentProposalDeclined,
				previous:  prev,
				notify:    []recipient{{userID: proposedBy, kind: KindProposalDeclined}},
			})
		}

		vetID := proposedBy
		if proposalID != "" {
			vetID = ""
		}
		proposal, err := tx.GetPendingProposal(ctx, a.ID, proposalID, vetID)
		if err != nil {
			if noSuchRow(err) {
				return apperr.NotFound("proposal not found")
			}
			return err
		}
		if err := move(a, model.StatusConfirmed); err != nil {
			return err
		}
		now := s.now()
		a.Date = proposal.Date
		a.TimeSlot = proposal.TimeSlot
		a.VetID = proposal.VetID
		a.ConfirmedAt = &now
		a.ClearProposal()
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		if err := tx.SetProposalStatus(ctx, proposal.ID, model.ProposalAccepted); err != nil {
			return err
		}
		if _, err := tx.DeclinePendingProposals(ctx, a.ID, proposal.ID); err != nil {
			return err
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentProposalAccepted,
			previous:  prev,
			notify:    []recipient{{userID: proposal.VetID, kind: KindProposalAccepted}},
		})
	})
}

func (s *Service) Start(ctx context.Context, p auth.Principal, id string, expected int64) (model.Appointment, error) {
	if err := requireRole(p, "starting a visit", auth.RoleVet); err != nil {
		return model.Appointment{}, err
	}
	return s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		if a.VetID != p.UserID {
			return errNotFound
		}
		prev := a.Status
		if err := move(a, model.StatusInProgress); err != nil {
			return err
		}
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentStarted,
			previous:  prev,
			notify:    []recipient{{userID: a.OwnerID, kind: KindStarted}},
		})
	})
}

// ReportInput is the vet's clinical report submitted on completion.
type ReportInput struct {
	Diagnosis      string
	Treatment      string
	Medications    string
	FollowUpNotes  string
	FollowUpNeeded bool
}

// Complete closes the visit and stores the clinical report. Payment capture
// is driven by the completed event.
func (s *Service) Complete(ctx context.Context, p auth.Principal, id string, report ReportInput, expected int64) (model.Appointment, model.ClinicalReport, error) {
	if err := requireRole(p, "completing a visit", auth.RoleVet); err != nil {
		return model.Appointment{}, model.ClinicalReport{}, err
	}
	if strings.TrimSpace(report.Diagnosis) == "" {
		return model.Appointment{}, model.ClinicalReport{}, apperr.Validation("clinical report diagnosis is required")
	}
	var saved model.ClinicalReport
	a, err := s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		if a.VetID != p.UserID {
			return errNotFound
		}
		prev := a.Status
		if err := move(a, model.StatusCompleted); err != nil {
			return err
		}
		now := s.now()
		a.CompletedAt = &now
		if err := s.update(ctx, tx, a); err != nil {
			return err
		}
		var err error
		saved, err = tx.InsertClinicalReport(ctx, model.ClinicalReport{
			AppointmentID:  a.ID,
			VetID:          p.UserID,
			Diagnosis:      strings.TrimSpace(report.Diagnosis),
			Treatment:      strings.TrimSpace(report.Treatment),
			Medications:    strings.TrimSpace(report.Medications),
			FollowUpNotes:  strings.TrimSpace(report.FollowUpNotes),
			FollowUpNeeded: report.FollowUpNeeded,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentCompleted,
			previous:  prev,
			notify:    []recipient{{userID: a.OwnerID, kind: KindCompleted}},
		})
	})
	if err != nil {
		return model.Appointment{}, model.ClinicalReport{}, err
	}
	return a, saved, nil
}

// Cancel deletes an appointment the owner (or an admin) no longer wants.
// Child rows go first so no foreign key is left dangling; the assigned vet
// is told through a notification that is not linked to the deleted row.
// Every cancel, drafts included, emits the cancelled event so billing
// releases or expires whatever payment exists.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id string, expected int64) error {
	if err := requireRole(p, "cancelling an appointment", auth.RolePetOwner, auth.RoleAdmin); err != nil {
		return err
	}
	_, err := s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		if !a.Status.OwnerCancellable() {
			return apperr.Conflict("appointment can no longer be cancelled")
		}
		prev := a.Status
		if err := tx.DeleteNotifications(ctx, a.ID); err != nil {
			return err
		}
		if err := tx.DeleteProposals(ctx, a.ID); err != nil {
			return err
		}
		if err := tx.DeleteClinicalReports(ctx, a.ID); err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, a.ID, a.Version); err != nil {
			return err
		}

		notify := []recipient{}
		switch {
		case prev == model.StatusPending:
		case a.VetID != "":
			notify = append(notify, recipient{userID: a.VetID, kind: KindCancelled, unlinked: true})
		case a.ProposedBy != "":
			notify = append(notify, recipient{userID: a.ProposedBy, kind: KindCancelled, unlinked: true})
		}
		a.Status = model.StatusCancelled
		return s.emit(ctx, tx, *a, change{
			eventType: events.AppointmentCancelled,
			previous:  prev,
			notify:    notify,
		})
	})
	return err
}
