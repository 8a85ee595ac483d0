package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/events"
)

type JoinInput struct {
	Email         string
	FullName      string
	Phone         string
	LicenseNumber string
	ServiceArea   string
	Message       string
}

// JoinWaitlist records a vet's request to join. One entry exists per email.
func (s *Service) JoinWaitlist(ctx context.Context, in JoinInput) (WaitlistEntry, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return WaitlistEntry{}, apperr.Validation("email is required")
	}
	now := s.now()
	entry := WaitlistEntry{
		ID:            uuid.NewString(),
		Email:         email,
		FullName:      in.FullName,
		Phone:         in.Phone,
		LicenseNumber: in.LicenseNumber,
		ServiceArea:   in.ServiceArea,
		Message:       in.Message,
		Status:        WaitlistPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertWaitlistEntry(ctx, entry); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return apperr.Conflict("email is already on the waitlist")
			}
			return storeErr(err, "waitlist entry")
		}
		return s.audit(ctx, tx, "waitlist.joined", "", entry.ID, map[string]any{"email": email})
	})
	if err != nil {
		return WaitlistEntry{}, err
	}
	return entry, nil
}

func (s *Service) ListWaitlist(ctx context.Context, p auth.Principal, status WaitlistStatus, limit int) ([]WaitlistEntry, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	switch status {
	case "", WaitlistPending, WaitlistApproved, WaitlistRejected:
	default:
		return nil, apperr.Validation("unknown waitlist status")
	}
	out, err := s.store.ListWaitlist(ctx, status, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal("list waitlist", err)
	}
	return out, nil
}

// ApproveWaitlist approves a pending entry. When a user already holds the
// email they are promoted to vet at once; otherwise the entry waits to be
// claimed by Register.
func (s *Service) ApproveWaitlist(ctx context.Context, p auth.Principal, id, note string) (WaitlistEntry, error) {
	return s.review(ctx, p, id, WaitlistApproved, note)
}

func (s *Service) RejectWaitlist(ctx context.Context, p auth.Principal, id, note string) (WaitlistEntry, error) {
	return s.review(ctx, p, id, WaitlistRejected, note)
}

func (s *Service) review(ctx context.Context, p auth.Principal, id string, to WaitlistStatus, note string) (WaitlistEntry, error) {
	if err := requireAdmin(p); err != nil {
		return WaitlistEntry{}, err
	}
	var entry WaitlistEntry
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if entry, err = tx.GetWaitlistEntryForUpdate(ctx, id); err != nil {
			return storeErr(err, "waitlist entry")
		}
		if entry.Status != WaitlistPending {
			return apperr.Conflict("waitlist entry already " + string(entry.Status))
		}
		now := s.now()
		entry.Status = to
		entry.ReviewedBy = p.UserID
		entry.ReviewNote = note
		entry.ReviewedAt = &now
		entry.UpdatedAt = now

		if to == WaitlistApproved {
			if err := s.promote(ctx, tx, &entry); err != nil {
				return err
			}
		}
		if err := tx.UpdateWaitlistEntry(ctx, entry); err != nil {
			return storeErr(err, "update waitlist entry")
		}
		return s.audit(ctx, tx, "waitlist."+string(to), p.UserID, entry.ID, map[string]any{
			"email":   entry.Email,
			"user_id": entry.UserID,
		})
	})
	if err != nil {
		return WaitlistEntry{}, err
	}
	return entry, nil
}

func (s *Service) promote(ctx context.Context, tx Tx, entry *WaitlistEntry) error {
	existing, err := tx.GetUserByEmail(ctx, entry.Email)
	if db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return storeErr(err, "user")
	}
	user, err := tx.GetUserForUpdate(ctx, existing.ID)
	if err != nil {
		return storeErr(err, "user")
	}
	entry.UserID = user.ID
	if user.Role == auth.RoleVet || user.Role == auth.RoleAdmin {
		return nil
	}
	user.Role = auth.RoleVet
	user.UpdatedAt = entry.UpdatedAt
	if err := tx.UpdateUser(ctx, user); err != nil {
		return storeErr(err, "update user")
	}
	if _, err := tx.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		return storeErr(err, "revoke refresh tokens")
	}
	return s.emitUser(ctx, tx, events.UserUpdated, user)
}
