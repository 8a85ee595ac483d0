package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/tokens"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

// UserPatch changes only the fields that are set.
type UserPatch struct {
	Role     *auth.Role
	Disabled *bool
	FullName *string
	Phone    *string
}

func (s *Service) ListUsers(ctx context.Context, p auth.Principal, q UserQuery) ([]User, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if q.Role != "" && !q.Role.Valid() {
		return nil, apperr.Validation("unknown role")
	}
	if q.Offset < 0 {
		return nil, apperr.Validation("offset must not be negative")
	}
	q.Email = normalizeEmail(q.Email)
	q.Limit = clampLimit(q.Limit)
	users, err := s.store.ListUsers(ctx, q)
	if err != nil {
		return nil, apperr.Internal("list users", err)
	}
	return users, nil
}

// UpdateUser applies an admin patch. A role change or a disable revokes the
// user's refresh tokens so the next session carries the new state.
func (s *Service) UpdateUser(ctx context.Context, p auth.Principal, id string, patch UserPatch) (User, error) {
	if err := requireAdmin(p); err != nil {
		return User{}, err
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return User{}, apperr.Validation("unknown role")
	}
	if id == p.UserID {
		if patch.Disabled != nil && *patch.Disabled {
			return User{}, apperr.Validation("admins cannot disable themselves")
		}
		if patch.Role != nil && *patch.Role != auth.RoleAdmin {
			return User{}, apperr.Validation("admins cannot change their own role")
		}
	}

	var user User
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if user, err = tx.GetUserForUpdate(ctx, id); err != nil {
			return storeErr(err, "user")
		}
		before := user
		changes := map[string]any{}
		if patch.Role != nil && *patch.Role != user.Role {
			user.Role = *patch.Role
			changes["role"] = string(user.Role)
		}
		if patch.Disabled != nil && *patch.Disabled != user.Disabled {
			user.Disabled = *patch.Disabled
			changes["disabled"] = user.Disabled
		}
		if patch.FullName != nil && *patch.FullName != user.FullName {
			user.FullName = *patch.FullName
			changes["full_name"] = user.FullName
		}
		if patch.Phone != nil && *patch.Phone != user.Phone {
			user.Phone = *patch.Phone
			changes["phone"] = user.Phone
		}
		if len(changes) == 0 {
			return nil
		}
		user.UpdatedAt = s.now()
		if err := tx.UpdateUser(ctx, user); err != nil {
			return storeErr(err, "update user")
		}
		if user.Role != before.Role || (user.Disabled && !before.Disabled) {
			if _, err := tx.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
				return storeErr(err, "revoke refresh tokens")
			}
		}
		if err := s.audit(ctx, tx, "admin.user.updated", p.UserID, user.ID, changes); err != nil {
			return err
		}
		return s.emitUser(ctx, tx, events.UserUpdated, user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) ListAudit(ctx context.Context, p auth.Principal, limit int) ([]AuditEvent, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	out, err := s.store.ListAudit(ctx, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal("list audit events", err)
	}
	return out, nil
}

func (s *Service) JWKS() auth.JWKS {
	return s.signer.JWKS()
}

// Rotate switches the signing key to kid. Keys stay published after a
// rotation so earlier tokens verify until they expire.
func (s *Service) Rotate(ctx context.Context, p auth.Principal, kid string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if kid == "" {
		return apperr.Validation("active_kid is required")
	}
	previous := s.signer.ActiveKid()
	if err := s.signer.SetActiveKid(kid); err != nil {
		switch {
		case errors.Is(err, tokens.ErrRotationUnsupported):
			return apperr.Conflict("key rotation is not enabled")
		case errors.Is(err, tokens.ErrUnknownKid):
			return apperr.Validation("unknown kid")
		}
		return apperr.Internal("rotate signing key", err)
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		return s.audit(ctx, tx, "jwt.rotate", p.UserID, "", map[string]any{"active_kid": kid, "previous_kid": previous})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "record key rotation", "err", err)
	}
	s.logger.InfoContext(ctx, "signing key rotated", "active_kid", kid, "previous_kid", previous)
	return nil
}

// EnsureAdmin creates the bootstrap administrator, or promotes the user that
// already holds the email. The password of an existing user is left alone.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, apperr.Validation("email is required")
	}
	var user User
	err := s.store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			if user, err = tx.GetUserForUpdate(ctx, existing.ID); err != nil {
				return storeErr(err, "user")
			}
			if user.Role == auth.RoleAdmin && !user.Disabled {
				return nil
			}
			user.Role, user.Disabled, user.UpdatedAt = auth.RoleAdmin, false, s.now()
			if err := tx.UpdateUser(ctx, user); err != nil {
				return storeErr(err, "update user")
			}
			return s.emitUser(ctx, tx, events.UserUpdated, user)
		case !db.IsNotFound(err):
			return storeErr(err, "user")
		}

		hash, err := HashPassword(password)
		if err != nil {
			return err
		}
		now := s.now()
		user = User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			Role:         auth.RoleAdmin,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return storeErr(err, "create user")
		}
		if err := s.audit(ctx, tx, "admin.bootstrap", "", user.ID, nil); err != nil {
			return err
		}
		return s.emitUser(ctx, tx, events.UserRegistered, user)
	})
	return user, err
}
