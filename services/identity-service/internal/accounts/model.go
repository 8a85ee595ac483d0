package accounts

import (
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         auth.Role
	FullName     string
	Phone        string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

type RefreshToken struct {
	ID        string
	UserID    string
	Hash      string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

func (t RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

type WaitlistStatus string

const (
	WaitlistPending  WaitlistStatus = "pending"
	WaitlistApproved WaitlistStatus = "approved"
	WaitlistRejected WaitlistStatus = "rejected"
)

// WaitlistEntry is a vet's request to join the platform. An approved entry
// lets its email register as a vet, or promotes the user who already holds
// that email.
type WaitlistEntry struct {
	ID            string
	Email         string
	FullName      string
	Phone         string
	LicenseNumber string
	ServiceArea   string
	Message       string
	Status        WaitlistStatus
	ReviewedBy    string
	ReviewNote    string
	ReviewedAt    *time.Time
	UserID        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AuditEvent struct {
	ID        int64
	EventType string
	ActorID   string
	SubjectID string
	Metadata  map[string]any
	CreatedAt time.Time
}
