package model

import (
	"errors"
	"time"
)

// ErrVersionConflict is returned by storage when an appointment changed
// since it was read.
var ErrVersionConflict = errors.New("appointment version conflict")

type Status string

const (
	StatusPending       Status = "pending"
	StatusWaitingForVet Status = "waiting_for_vet"
	StatusConfirmed     Status = "confirmed"
	StatusTimeProposed  Status = "time_proposed"
	StatusDeclined      Status = "declined"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentPaid       PaymentStatus = "paid"
	PaymentReleased   PaymentStatus = "released"
)

// Settled reports whether funds have already moved to the platform.
func (p PaymentStatus) Settled() bool {
	return p == PaymentCaptured || p == PaymentPaid
}

// LineItem is one priced service on an appointment.
type LineItem struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

type Appointment struct {
	ID                string
	OwnerID           string
	VetID             string
	PetID             string
	Date              string // YYYY-MM-DD
	TimeSlot          string
	Address           string
	Notes             string
	Services          []LineItem
	TotalCents        int64
	Currency          string
	Status            Status
	PaymentStatus     PaymentStatus
	PaymentIntentID   string
	CheckoutSessionID string
	ProposedDate      string
	ProposedTimeSlot  string
	ProposedBy        string
	ProposalMessage   string
	DeclineReason     string
	Version           int64
	ConfirmedAt       *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ClearProposal resets the alternate-time fields.
func (a *Appointment) ClearProposal() {
	a.ProposedDate = ""
	a.ProposedTimeSlot = ""
	a.ProposedBy = ""
	a.ProposalMessage = ""
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalDeclined ProposalStatus = "declined"
)

type TimeProposal struct {
	ID            string
	AppointmentID string
	VetID         string
	Date          string
	TimeSlot      string
	Message       string
	Status        ProposalStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Notification struct {
	ID            string
	UserID        string
	AppointmentID string // empty when the appointment no longer exists
	Kind          string
	Title         string
	Body          string
	ReadAt        *time.Time
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

type ClinicalReport struct {
	ID             string
	AppointmentID  string
	VetID          string
	Diagnosis      string
	Treatment      string
	Medications    string
	FollowUpNotes  string
	FollowUpNeeded bool
	CreatedAt      time.Time
}

type Pet struct {
	ID        string
	OwnerID   string
	Name      string
	Species   string
	Breed     string
	BirthDate string
	WeightKg  float64
	Notes     string
	CreatedAt time.Time
}
