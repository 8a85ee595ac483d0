// Package workflow implements the appointment lifecycle: drafts, vet
// responses, time proposals, completion and cancellation.
//
// Each operation runs in a single store transaction that also writes the
// recipient's notification row and an outbox event. Email, push and payment
// side effects happen downstream of the outbox and never undo a transition.
//
// Concurrent writers are resolved optimistically: appointments carry a
// version, every write is conditional on the version that was read, and the
// losing writer receives a conflict error.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

type Options struct {
	Catalog         *catalog.Catalog
	Schedule        availability.Schedule
	Currency        string
	NotificationTTL time.Duration
	Now             func() time.Time
}

type Service struct {
	store    Store
	logger   *slog.Logger
	catalog  *catalog.Catalog
	schedule availability.Schedule
	currency string
	ttl      time.Duration
	now      func() time.Time
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Schedule.Length <= 0 {
		opts.Schedule = availability.DefaultSchedule(time.UTC)
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.NotificationTTL <= 0 {
		opts.NotificationTTL = 90 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    store,
		logger:   logger,
		catalog:  opts.Catalog,
		schedule: opts.Schedule,
		currency: strings.ToLower(opts.Currency),
		ttl:      opts.NotificationTTL,
		now:      opts.Now,
	}
}

func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

var errNotFound = apperr.NotFound("appointment not found")

// visible applies row-level access: owners see their own rows, vets see
// rows assigned to them plus open unassigned requests, admins see all.
func visible(p auth.Principal, a model.Appointment) bool {
	switch p.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePetOwner:
		return a.OwnerID == p.UserID
	case auth.RoleVet:
		if a.VetID == p.UserID {
			return true
		}
		return a.VetID == "" && a.Status.OpenRequest()
	}
	return false
}

func requireRole(p auth.Principal, action string, roles ...auth.Role) error {
	if p.UserID == "" {
		return apperr.Unauthorized("authentication required")
	}
	if !p.Is(roles...) {
		return apperr.Forbidden(fmt.Sprintf("%s is not allowed for role %s", action, p.Role))
	}
	return nil
}

// mutate loads the appointment inside a transaction, checks visibility and
// the caller's expected version, and hands it to fn for changes.
func (s *Service) mutate(ctx context.Context, p auth.Principal, id string, expected int64, fn func(Tx, *model.Appointment) error) (model.Appointment, error) {
	var out model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			if noSuchRow(err) {
				return errNotFound
			}
			return err
		}
		if !visible(p, a) {
			return errNotFound
		}
		if expected > 0 && a.Version != expected {
			return versionConflict(a.Version)
		}
		if err := fn(tx, &a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	return out, nil
}

func versionConflict(current int64) error {
	return apperr.Conflict(fmt.Sprintf("appointment was modified (current version %d); reload and retry", current))
}

// noSuchRow is true when a lookup matched nothing, including lookups by an
// id that is not a valid uuid.
func noSuchRow(err error) bool {
	return db.IsNotFound(err) || db.IsInvalidInput(err)
}

// storeErr passes classified errors through and reports the rest as an
// upstream store failure.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrVersionConflict) {
		return apperr.Wrap(apperr.KindConflict, "appointment was modified concurrently; reload and retry", err)
	}
	if db.IsInvalidInput(err) {
		return apperr.Wrap(apperr.KindValidation, "malformed id in request", err)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Upstream("appointment store unavailable", err)
}

func move(a *model.Appointment, to model.Status) error {
	if !a.Status.CanTransitionTo(to) {
		return apperr.Conflict(fmt.Sprintf("appointment is %s and cannot become %s", a.Status, to))
	}
	a.Status = to
	return nil
}

func (s *Service) update(ctx context.Context, tx Tx, a *model.Appointment) error {
	a.UpdatedAt = s.now()
	return tx.UpdateAppointment(ctx, a)
}
