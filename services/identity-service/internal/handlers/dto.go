package handlers

import (
	"time"

	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FullName  string `json:"full_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Disabled  bool   `json:"disabled"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toUser(u accounts.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		FullName:  u.FullName,
		Phone:     u.Phone,
		Disabled:  u.Disabled,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
	}
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

func toSession(s accounts.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.ExpiresIn / time.Second),
		User:         toUser(s.User),
	}
}

type waitlistResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	ServiceArea   string `json:"service_area,omitempty"`
	Message       string `json:"message,omitempty"`
	Status        string `json:"status"`
	ReviewedBy    string `json:"reviewed_by,omitempty"`
	ReviewNote    string `json:"review_note,omitempty"`
	ReviewedAt    string `json:"reviewed_at,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toWaitlist(e accounts.WaitlistEntry) waitlistResponse {
	out := waitlistResponse{
		ID:            e.ID,
		Email:         e.Email,
		FullName:      e.FullName,
		Phone:         e.Phone,
		LicenseNumber: e.LicenseNumber,
		ServiceArea:   e.ServiceArea,
		Message:       e.Message,
		Status:        string(e.Status),
		ReviewedBy:    e.ReviewedBy,
		ReviewNote:    e.ReviewNote,
		UserID:        e.UserID,
		CreatedAt:     formatTime(e.CreatedAt),
	}
	if e.ReviewedAt != nil {
		out.ReviewedAt = formatTime(*e.ReviewedAt)
	}
	return out
}

type auditResponse struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	ActorID   string         `json:"actor_id,omitempty"`
	SubjectID string         `json:"subject_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
