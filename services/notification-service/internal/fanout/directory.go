package fanout

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/vetcall/libs/events"
)

// ApplyUser copies an identity user into the recipient directory.
func (d *Dispatcher) ApplyUser(ctx context.Context, u events.User) error {
	return d.directory.UpsertRecipient(ctx, Recipient{
		UserID:    u.UserID,
		Email:     strings.ToLower(strings.TrimSpace(u.Email)),
		FullName:  strings.TrimSpace(u.FullName),
		Phone:     strings.TrimSpace(u.Phone),
		Role:      u.Role,
		Disabled:  u.Disabled,
		UpdatedAt: u.OccurredAt.UTC(),
	})
}
