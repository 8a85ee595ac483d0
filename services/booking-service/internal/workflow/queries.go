package workflow

import (
	"context"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (model.Appointment, error) {
	if p.UserID == "" {
		return model.Appointment{}, apperr.Unauthorized("authentication required")
	}
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if noSuchRow(err) {
			return model.Appointment{}, errNotFound
		}
		return model.Appointment{}, storeErr(err)
	}
	if !visible(p, a) {
		return model.Appointment{}, errNotFound
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, p auth.Principal, status model.Status, limit int) ([]model.Appointment, error) {
	if p.UserID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("unknown status filter")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := ListQuery{Status: status, Limit: limit}
	switch p.Role {
	case auth.RolePetOwner:
		q.OwnerID = p.UserID
	case auth.RoleVet:
		q.VetID = p.UserID
		q.IncludeOpen = true
	case auth.RoleAdmin:
	default:
		return nil, apperr.Forbidden("unknown role")
	}
	out, err := s.store.ListAppointments(ctx, q)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *Service) Proposals(ctx context.Context, p auth.Principal, id string) ([]model.TimeProposal, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	out, err := s.store.ListProposals(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *Service) ClinicalReport(ctx context.Context, p auth.Principal, id string) (model.ClinicalReport, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return model.ClinicalReport{}, err
	}
	r, err := s.store.GetClinicalReport(ctx, id)
	if err != nil {
		if noSuchRow(err) {
			return model.ClinicalReport{}, apperr.NotFound("clinical report not found")
		}
		return model.ClinicalReport{}, storeErr(err)
	}
	return r, nil
}

// Slots lists the windows still bookable on date. With vetID the vet's
// confirmed visits are excluded.
func (s *Service) Slots(ctx context.Context, date, vetID string) ([]availability.Slot, error) {
	if !availability.ValidDate(date) {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}
	var busy []string
	if vetID != "" {
		var err error
		busy, err = s.store.BookedSlots(ctx, vetID, date)
		if err != nil {
			return nil, storeErr(err)
		}
	}
	slots, err := s.schedule.DaySlots(date, busy, s.now())
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	return slots, nil
}

func (s *Service) CreatePet(ctx context.Context, p auth.Principal, pet model.Pet) (model.Pet, error) {
	if err := requireRole(p, "registering a pet", auth.RolePetOwner); err != nil {
		return model.Pet{}, err
	}
	if pet.Name == "" || pet.Species == "" {
		return model.Pet{}, apperr.Validation("pet name and species are required")
	}
	if pet.BirthDate != "" && !availability.ValidDate(pet.BirthDate) {
		return model.Pet{}, apperr.Validation("birth_date must be YYYY-MM-DD")
	}
	pet.OwnerID = p.UserID
	saved, err := s.store.CreatePet(ctx, pet)
	if err != nil {
		return model.Pet{}, storeErr(err)
	}
	return saved, nil
}

func (s *Service) ListPets(ctx context.Context, p auth.Principal) ([]model.Pet, error) {
	if err := requireRole(p, "listing pets", auth.RolePetOwner); err != nil {
		return nil, err
	}
	out, err := s.store.ListPets(ctx, p.UserID)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *Service) Notifications(ctx context.Context, p auth.Principal, unreadOnly bool, limit int) ([]model.Notification, error) {
	if p.UserID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out, err := s.store.ListNotifications(ctx, p.UserID, unreadOnly, s.now(), limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, p auth.Principal, id string) error {
	if p.UserID == "" {
		return apperr.Unauthorized("authentication required")
	}
	if err := s.store.MarkNotificationRead(ctx, p.UserID, id, s.now()); err != nil {
		if noSuchRow(err) {
			return apperr.NotFound("notification not found")
		}
		return storeErr(err)
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, p auth.Principal) (int64, error) {
	if p.UserID == "" {
		return 0, apperr.Unauthorized("authentication required")
	}
	n, err := s.store.MarkAllNotificationsRead(ctx, p.UserID, s.now())
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}
