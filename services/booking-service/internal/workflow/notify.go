package workflow

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

// Notification kinds, one per lifecycle event a user hears about.
const (
	KindWaitingForVet    = "waiting_for_vet"
	KindNewRequest       = "new_request"
	KindAccepted         = "accepted"
	KindDeclined         = "declined"
	KindTimeProposed     = "time_proposed"
	KindProposalAccepted = "proposal_accepted"
	KindProposalDeclined = "proposal_declined"
	KindStarted          = "started"
	KindCompleted        = "completed"
	KindCancelled        = "cancelled"
)

type recipient struct {
	userID string
	kind   string
	// unlinked notifications survive the deletion of their appointment.
	unlinked bool
}

type change struct {
	eventType string
	previous  model.Status
	message   string
	reason    string
	notify    []recipient
}

// emit writes one notification row per recipient and the outbox event that
// downstream push, email and payment handling consume.
func (s *Service) emit(ctx context.Context, tx Tx, a model.Appointment, c change) error {
	petName := s.petName(ctx, tx, a.PetID)
	now := s.now()

	payload := events.Appointment{
		AppointmentID:    a.ID,
		OwnerID:          a.OwnerID,
		VetID:            a.VetID,
		PetID:            a.PetID,
		PetName:          petName,
		Status:           string(a.Status),
		PreviousStatus:   string(c.previous),
		Date:             a.Date,
		TimeSlot:         a.TimeSlot,
		Address:          a.Address,
		ProposedDate:     a.ProposedDate,
		ProposedTimeSlot: a.ProposedTimeSlot,
		Message:          c.message,
		Reason:           c.reason,
		PaymentStatus:    string(a.PaymentStatus),
		PaymentIntentID:  a.PaymentIntentID,
		TotalCents:       a.TotalCents,
		Currency:         a.Currency,
		OccurredAt:       now,
	}

	for _, r := range c.notify {
		if r.userID == "" {
			continue
		}
		title, body := render(r.kind, a, petName, c)
		n := model.Notification{
			UserID:    r.userID,
			Kind:      r.kind,
			Title:     title,
			Body:      body,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}
		if !r.unlinked {
			n.AppointmentID = a.ID
		}
		saved, err := tx.InsertNotification(ctx, n)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		payload.Notices = append(payload.Notices, events.Notice{
			ID:            saved.ID,
			UserID:        saved.UserID,
			AppointmentID: saved.AppointmentID,
			Kind:          saved.Kind,
			Title:         saved.Title,
			Body:          saved.Body,
			CreatedAt:     saved.CreatedAt,
		})
	}

	evt, err := outbox.NewEvent("appointment", a.ID, c.eventType, payload)
	if err != nil {
		return err
	}
	if err := tx.Enqueue(ctx, evt); err != nil {
		return fmt.Errorf("enqueue %s: %w", c.eventType, err)
	}
	return nil
}

func (s *Service) petName(ctx context.Context, tx Tx, petID string) string {
	if petID == "" {
		return ""
	}
	pet, err := tx.GetPet(ctx, petID)
	if err != nil {
		return ""
	}
	return pet.Name
}

func render(kind string, a model.Appointment, petName string, c change) (string, string) {
	who := "your pet"
	if petName != "" {
		who = petName
	}
	when := a.Date + " " + a.TimeSlot
	switch kind {
	case KindWaitingForVet:
		return "Booking received", fmt.Sprintf("Payment for %s's visit on %s is authorized. We are matching you with a vet.", who, when)
	case KindNewRequest:
		return "New visit request", fmt.Sprintf("A house call for %s on %s is waiting for your response.", who, when)
	case KindAccepted:
		return "Visit confirmed", fmt.Sprintf("Your vet accepted the visit for %s on %s.", who, when)
	case KindDeclined:
		body := fmt.Sprintf("The visit for %s on %s was declined. Your card will not be charged.", who, when)
		if c.reason != "" {
			body += " Reason: " + c.reason
		}
		return "Visit declined", body
	case KindTimeProposed:
		body := fmt.Sprintf("Your vet proposed %s %s for %s's visit.", a.ProposedDate, a.ProposedTimeSlot, who)
		if c.message != "" {
			body += " Note: " + c.message
		}
		return "New time proposed", body
	case KindProposalAccepted:
		return "Proposal accepted", fmt.Sprintf("The owner accepted your proposed time %s for %s.", when, who)
	case KindProposalDeclined:
		return "Proposal declined", fmt.Sprintf("The owner declined your proposed time for %s. The request was cancelled.", who)
	case KindStarted:
		return "Visit started", fmt.Sprintf("Your vet has started the visit for %s.", who)
	case KindCompleted:
		return "Visit completed", fmt.Sprintf("The visit for %s is complete. The clinical report is available in your account.", who)
	case KindCancelled:
		return "Visit cancelled", fmt.Sprintf("The visit for %s on %s was cancelled by the owner.", who, when)
	default:
		return "Appointment update", fmt.Sprintf("Your appointment for %s was updated.", who)
	}
}
