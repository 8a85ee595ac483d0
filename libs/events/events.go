// Package events defines the Kafka topics and payloads exchanged between
// services. Topics are versioned; a breaking payload change gets a new topic.
package events

import "time"

const (
	AppointmentWaitingForVet    = "booking.appointment.waiting_for_vet.v1"
	AppointmentAccepted         = "booking.appointment.accepted.v1"
	AppointmentDeclined         = "booking.appointment.declined.v1"
	AppointmentTimeProposed     = "booking.appointment.time_proposed.v1"
	AppointmentProposalAccepted = "booking.appointment.proposal_accepted.v1"
	AppointmentProposalDeclined = "booking.appointment.proposal_declined.v1"
	AppointmentStarted          = "booking.appointment.started.v1"
	AppointmentCompleted        = "booking.appointment.completed.v1"
	AppointmentCancelled        = "booking.appointment.cancelled.v1"

	PaymentAuthorized = "billing.payment.authorized.v1"
	PaymentCaptured   = "billing.payment.captured.v1"
	PaymentReleased   = "billing.payment.released.v1"

	UserRegistered = "identity.user.registered.v1"
	UserUpdated    = "identity.user.updated.v1"
)

// AppointmentTopics lists every booking lifecycle topic.
var AppointmentTopics = []string{
	AppointmentWaitingForVet,
	AppointmentAccepted,
	AppointmentDeclined,
	AppointmentTimeProposed,
	AppointmentProposalAccepted,
	AppointmentProposalDeclined,
	AppointmentStarted,
	AppointmentCompleted,
	AppointmentCancelled,
}

// Notice is a notification row as it was written by booking-service.
type Notice struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

type Appointment struct {
	AppointmentID    string    `json:"appointment_id"`
	OwnerID          string    `json:"owner_id"`
	VetID            string    `json:"vet_id,omitempty"`
	PetID            string    `json:"pet_id,omitempty"`
	PetName          string    `json:"pet_name,omitempty"`
	Status           string    `json:"status"`
	PreviousStatus   string    `json:"previous_status,omitempty"`
	Date             string    `json:"date,omitempty"`
	TimeSlot         string    `json:"time_slot,omitempty"`
	Address          string    `json:"address,omitempty"`
	ProposedDate     string    `json:"proposed_date,omitempty"`
	ProposedTimeSlot string    `json:"proposed_time_slot,omitempty"`
	Message          string    `json:"message,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	PaymentStatus    string    `json:"payment_status"`
	PaymentIntentID  string    `json:"payment_intent_id,omitempty"`
	TotalCents       int64     `json:"total_cents"`
	Currency         string    `json:"currency"`
	Notices          []Notice  `json:"notices,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type Payment struct {
	AppointmentID     string    `json:"appointment_id"`
	OwnerID           string    `json:"owner_id,omitempty"`
	PaymentIntentID   string    `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string    `json:"checkout_session_id,omitempty"`
	Status            string    `json:"status"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type User struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       string    `json:"role"`
	Disabled   bool      `json:"disabled"`
	OccurredAt time.Time `json:"occurred_at"`
}
