package handlers

import (
	"time"

	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
)

type appointmentResponse struct {
	ID               string           `json:"id"`
	OwnerID          string           `json:"owner_id"`
	VetID            string           `json:"vet_id,omitempty"`
	PetID            string           `json:"pet_id,omitempty"`
	Date             string           `json:"date,omitempty"`
	TimeSlot         string           `json:"time_slot,omitempty"`
	Address          string           `json:"address,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Services         []model.LineItem `json:"services"`
	TotalCents       int64            `json:"total_cents"`
	Currency         string           `json:"currency"`
	Status           string           `json:"status"`
	PaymentStatus    string           `json:"payment_status"`
	PaymentIntentID  string           `json:"payment_intent_id,omitempty"`
	ProposedDate     string           `json:"proposed_date,omitempty"`
	ProposedTimeSlot string           `json:"proposed_time_slot,omitempty"`
	ProposedBy       string           `json:"proposed_by,omitempty"`
	ProposalMessage  string           `json:"proposal_message,omitempty"`
	DeclineReason    string           `json:"decline_reason,omitempty"`
	MissingFields    []string         `json:"missing_fields,omitempty"`
	Version          int64            `json:"version"`
	ConfirmedAt      string           `json:"confirmed_at,omitempty"`
	CompletedAt      string           `json:"completed_at,omitempty"`
	CreatedAt        string           `json:"created_at,omitempty"`
	UpdatedAt        string           `json:"updated_at,omitempty"`
}

func toAppointment(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:               a.ID,
		OwnerID:          a.OwnerID,
		VetID:            a.VetID,
		PetID:            a.PetID,
		Date:             a.Date,
		TimeSlot:         a.TimeSlot,
		Address:          a.Address,
		Notes:            a.Notes,
		Services:         a.Services,
		TotalCents:       a.TotalCents,
		Currency:         a.Currency,
		Status:           string(a.Status),
		PaymentStatus:    string(a.PaymentStatus),
		PaymentIntentID:  a.PaymentIntentID,
		ProposedDate:     a.ProposedDate,
		ProposedTimeSlot: a.ProposedTimeSlot,
		ProposedBy:       a.ProposedBy,
		ProposalMessage:  a.ProposalMessage,
		DeclineReason:    a.DeclineReason,
		Version:          a.Version,
		ConfirmedAt:      formatTimePtr(a.ConfirmedAt),
		CompletedAt:      formatTimePtr(a.CompletedAt),
		CreatedAt:        formatTime(a.CreatedAt),
		UpdatedAt:        formatTime(a.UpdatedAt),
	}
	if out.Services == nil {
		out.Services = []model.LineItem{}
	}
	if a.Status == model.StatusPending {
		out.MissingFields = workflow.MissingForCheckout(a)
	}
	return out
}

type proposalResponse struct {
	ID        string `json:"id"`
	VetID     string `json:"vet_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

type reportResponse struct {
	ID             string `json:"id"`
	AppointmentID  string `json:"appointment_id"`
	VetID          string `json:"vet_id"`
	Diagnosis      string `json:"diagnosis"`
	Treatment      string `json:"treatment,omitempty"`
	Medications    string `json:"medications,omitempty"`
	FollowUpNotes  string `json:"follow_up_notes,omitempty"`
	FollowUpNeeded bool   `json:"follow_up_needed"`
	CreatedAt      string `json:"created_at,omitempty"`
}

func toReport(r model.ClinicalReport) reportResponse {
	return reportResponse{
		ID:             r.ID,
		AppointmentID:  r.AppointmentID,
		VetID:          r.VetID,
		Diagnosis:      r.Diagnosis,
		Treatment:      r.Treatment,
		Medications:    r.Medications,
		FollowUpNotes:  r.FollowUpNotes,
		FollowUpNeeded: r.FollowUpNeeded,
		CreatedAt:      formatTime(r.CreatedAt),
	}
}

type petResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Species   string  `json:"species"`
	Breed     string  `json:"breed,omitempty"`
	BirthDate string  `json:"birth_date,omitempty"`
	WeightKg  float64 `json:"weight_kg,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

func toPet(p model.Pet) petResponse {
	return petResponse{
		ID:        p.ID,
		Name:      p.Name,
		Species:   p.Species,
		Breed:     p.Breed,
		BirthDate: p.BirthDate,
		WeightKg:  p.WeightKg,
		Notes:     p.Notes,
	}
}

type notificationResponse struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	Read          bool   `json:"read"`
	CreatedAt     string `json:"created_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
