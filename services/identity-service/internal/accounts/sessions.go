package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         User
}

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// HashToken is the form a refresh token is stored in.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return "", apperr.Validation("password must be 8 to 72 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}
	return string(hash), nil
}

// Register creates a pet owner, or a vet when an approved waitlist entry
// for the email is still unclaimed. The entry is claimed in the same
// transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return Session{}, apperr.Validation("email is required")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RolePetOwner,
		FullName:     in.FullName,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var refresh string
	err = s.store.InTx(ctx, func(tx Tx) error {
		entry, err := tx.GetApprovedWaitlistEntry(ctx, email)
		switch {
		case err == nil:
			user.Role = auth.RoleVet
			if user.FullName == "" {
				user.FullName = entry.FullName
			}
			if user.Phone == "" {
				user.Phone = entry.Phone
			}
		case !db.IsNotFound(err):
			return storeErr(err, "waitlist entry")
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			return storeErr(err, "create user")
		}
		if user.Role == auth.RoleVet {
			entry.UserID = user.ID
			entry.UpdatedAt = now
			if err := tx.UpdateWaitlistEntry(ctx, entry); err != nil {
				return storeErr(err, "claim waitlist entry")
			}
		}
		if refresh, err = s.issueRefresh(ctx, tx, user.ID); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, "auth.register", user.ID, user.ID, map[string]any{"role": string(user.Role)}); err != nil {
			return err
		}
		return s.emitUser(ctx, tx, events.UserRegistered, user)
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	return s.session(user, refresh)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if db.IsNotFound(err) {
			return Session{}, apperr.Unauthorized("invalid credentials")
		}
		return Session{}, apperr.Internal("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, apperr.Unauthorized("invalid credentials")
	}
	if user.Disabled {
		return Session{}, apperr.Forbidden("account disabled")
	}

	var refresh string
	err = s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if refresh, err = s.issueRefresh(ctx, tx, user.ID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "auth.login", user.ID, user.ID, nil)
	})
	if err != nil {
		return Session{}, err
	}
	return s.session(user, refresh)
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated or revoked revokes every token of its user.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	if raw == "" {
		return Session{}, apperr.Validation("refresh_token is required")
	}
	var (
		user    User
		refresh string
		reused  bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		tok, err := tx.GetRefreshTokenForUpdate(ctx, HashToken(raw))
		if err != nil {
			if db.IsNotFound(err) {
				return apperr.Unauthorized("invalid refresh token")
			}
			return storeErr(err, "refresh token")
		}
		if tok.RevokedAt != nil {
			reused = true
			n, err := tx.RevokeUserRefreshTokens(ctx, tok.UserID)
			if err != nil {
				return storeErr(err, "revoke refresh tokens")
			}
			return s.audit(ctx, tx, "auth.refresh.reuse", tok.UserID, tok.UserID, map[string]any{"revoked": n})
		}
		if !tok.Usable(s.now()) {
			return apperr.Unauthorized("refresh token expired")
		}
		if user, err = tx.GetUserForUpdate(ctx, tok.UserID); err != nil {
			if db.IsNotFound(err) {
				return apperr.Unauthorized("invalid refresh token")
			}
			return storeErr(err, "user")
		}
		if user.Disabled {
			return apperr.Unauthorized("account disabled")
		}
		if err := tx.RevokeRefreshToken(ctx, tok.ID); err != nil {
			return storeErr(err, "revoke refresh token")
		}
		refresh, err = s.issueRefresh(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	if reused {
		s.logger.WarnContext(ctx, "refresh token reuse detected")
		return Session{}, apperr.Unauthorized("invalid refresh token")
	}
	return s.session(user, refresh)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return apperr.Validation("refresh_token is required")
	}
	return s.store.InTx(ctx, func(tx Tx) error {
		tok, err := tx.GetRefreshTokenForUpdate(ctx, HashToken(raw))
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return storeErr(err, "refresh token")
		}
		if tok.RevokedAt != nil {
			return nil
		}
		if err := tx.RevokeRefreshToken(ctx, tok.ID); err != nil {
			return storeErr(err, "revoke refresh token")
		}
		return s.audit(ctx, tx, "auth.logout", tok.UserID, tok.UserID, nil)
	})
}

func (s *Service) Me(ctx context.Context, p auth.Principal) (User, error) {
	if p.UserID == "" {
		return User{}, apperr.Unauthorized("authentication required")
	}
	u, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		return User{}, storeErr(err, "user")
	}
	return u, nil
}

func (s *Service) issueRefresh(ctx context.Context, tx Tx, userID string) (string, error) {
	raw, err := newRefreshToken()
	if err != nil {
		return "", apperr.Internal("generate refresh token", err)
	}
	now := s.now()
	if err := tx.CreateRefreshToken(ctx, RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Hash:      HashToken(raw),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}); err != nil {
		return "", storeErr(err, "store refresh token")
	}
	return raw, nil
}

func (s *Service) session(u User, refresh string) (Session, error) {
	access, err := s.signer.Sign(auth.NewClaims(u.ID, u.Email, u.Role, s.issuer, s.accessTTL))
	if err != nil {
		return Session{}, apperr.Internal("sign access token", err)
	}
	return Session{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.accessTTL, User: u}, nil
}
