package accounts

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
)

// ErrEmailTaken is returned by CreateUser and InsertWaitlistEntry when the
// email is already in use.
var ErrEmailTaken = errors.New("email already in use")

type UserQuery struct {
	Role     auth.Role
	Email    string
	Disabled *bool
	Limit    int
	Offset   int
}

// Store is the persistence boundary of accounts. Lookups of missing rows
// return errors for which db.IsNotFound is true.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, q UserQuery) ([]User, error)
	ListWaitlist(ctx context.Context, status WaitlistStatus, limit int) ([]WaitlistEntry, error)
	ListAudit(ctx context.Context, limit int) ([]AuditEvent, error)
}

type Tx interface {
	CreateUser(ctx context.Context, u User) error
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserForUpdate(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, u User) error

	CreateRefreshToken(ctx context.Context, t RefreshToken) error
	GetRefreshTokenForUpdate(ctx context.Context, hash string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) (int64, error)

	InsertWaitlistEntry(ctx context.Context, e WaitlistEntry) error
	GetWaitlistEntryForUpdate(ctx context.Context, id string) (WaitlistEntry, error)
	// GetApprovedWaitlistEntry returns the approved, not yet claimed entry
	// for an email.
	GetApprovedWaitlistEntry(ctx context.Context, email string) (WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, e WaitlistEntry) error

	InsertAudit(ctx context.Context, e AuditEvent) error
	Enqueue(ctx context.Context, evt outbox.Event) error
}
