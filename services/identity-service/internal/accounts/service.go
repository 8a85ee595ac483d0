package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/tokens"
)

type Options struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

type Service struct {
	store      Store
	signer     tokens.Signer
	logger     *slog.Logger
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(store Store, signer tokens.Signer, logger *slog.Logger, opts Options) *Service {
	if opts.Issuer == "" {
		opts.Issuer = "vetcall-identity"
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:      store,
		signer:     signer,
		logger:     logger,
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// storeErr maps persistence failures onto the error kinds the handlers
// render. Errors that already carry a kind pass through.
func storeErr(err error, what string) error {
	var typed *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &typed):
		return err
	case db.IsNotFound(err), db.IsInvalidInput(err):
		return apperr.NotFound(what + " not found")
	case errors.Is(err, ErrEmailTaken):
		return apperr.Conflict("email already registered")
	default:
		return apperr.Internal(what, err)
	}
}

func (s *Service) audit(ctx context.Context, tx Tx, eventType, actorID, subjectID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := httpx.RequestIDFromContext(ctx); reqID != "" {
		metadata["request_id"] = reqID
	}
	if err := tx.InsertAudit(ctx, AuditEvent{
		EventType: eventType,
		ActorID:   actorID,
		SubjectID: subjectID,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}); err != nil {
		return apperr.Internal("record audit event", err)
	}
	return nil
}

func (s *Service) emitUser(ctx context.Context, tx Tx, eventType string, u User) error {
	evt, err := outbox.NewEvent("user", u.ID, eventType, events.User{
		UserID:     u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Phone:      u.Phone,
		Role:       string(u.Role),
		Disabled:   u.Disabled,
		OccurredAt: u.UpdatedAt,
	})
	if err != nil {
		return apperr.Internal("build user event", err)
	}
	if err := tx.Enqueue(ctx, evt); err != nil {
		return apperr.Upstream("enqueue user event", err)
	}
	return nil
}

func requireAdmin(p auth.Principal) error {
	if p.UserID == "" {
		return apperr.Unauthorized("authentication required")
	}
	if !p.Is(auth.RoleAdmin) {
		return apperr.Forbidden("admin role required")
	}
	return nil
}
