package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

// GetOrCreateDraft returns the owner's single pending appointment, creating
// it on first use. Uniqueness is enforced by the store, so concurrent calls
// converge on the same row.
func (s *Service) GetOrCreateDraft(ctx context.Context, p auth.Principal) (model.Appointment, error) {
	if err := requireRole(p, "creating a booking", auth.RolePetOwner); err != nil {
		return model.Appointment{}, err
	}
	var draft model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		draft, err = tx.UpsertDraft(ctx, p.UserID, s.currency)
		return err
	})
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	return draft, nil
}

// DraftPatch carries the owner's booking-form edits. Nil fields are left
// unchanged; ServiceCodes replaces the whole service list when non-nil.
type DraftPatch struct {
	PetID        *string
	VetID        *string
	Date         *string
	TimeSlot     *string
	Address      *string
	Notes        *string
	ServiceCodes []string
}

func (s *Service) UpdateDraft(ctx context.Context, p auth.Principal, id string, patch DraftPatch, expected int64) (model.Appointment, error) {
	if err := requireRole(p, "editing a booking", auth.RolePetOwner); err != nil {
		return model.Appointment{}, err
	}
	return s.mutate(ctx, p, id, expected, func(tx Tx, a *model.Appointment) error {
		if a.Status != model.StatusPending {
			return apperr.Conflict("only draft appointments can be edited")
		}
		if patch.PetID != nil {
			pet, err := tx.GetPet(ctx, *patch.PetID)
			if err != nil {
				if noSuchRow(err) {
					return apperr.Validation("pet not found")
				}
				return err
			}
			if pet.OwnerID != a.OwnerID {
				return apperr.Validation("pet not found")
			}
			a.PetID = pet.ID
		}
		if patch.VetID != nil {
			vetID := strings.TrimSpace(*patch.VetID)
			if vetID != "" && uuid.Validate(vetID) != nil {
				return apperr.Validation("vet_id must be a uuid")
			}
			a.VetID = vetID
		}
		if patch.Date != nil {
			if !availability.ValidDate(*patch.Date) {
				return apperr.Validation("date must be YYYY-MM-DD")
			}
			a.Date = *patch.Date
		}
		if patch.TimeSlot != nil {
			if !availability.ValidWindow(*patch.TimeSlot) {
				return apperr.Validation(`time_slot must look like "10:00 - 12:00 PM"`)
			}
			a.TimeSlot = *patch.TimeSlot
		}
		if patch.Address != nil {
			a.Address = strings.TrimSpace(*patch.Address)
		}
		if patch.Notes != nil {
			a.Notes = strings.TrimSpace(*patch.Notes)
		}
		if patch.ServiceCodes != nil {
			items, total, err := s.catalog.Price(patch.ServiceCodes)
			if err != nil {
				return apperr.Validation(err.Error())
			}
			a.Services = items
			a.TotalCents = total
		}
		return s.update(ctx, tx, a)
	})
}

// MissingForCheckout lists the draft fields that must be filled before the
// owner can pay.
func MissingForCheckout(a model.Appointment) []string {
	var missing []string
	if a.PetID == "" {
		missing = append(missing, "pet_id")
	}
	if a.Date == "" {
		missing = append(missing, "date")
	}
	if a.TimeSlot == "" {
		missing = append(missing, "time_slot")
	}
	if a.Address == "" {
		missing = append(missing, "address")
	}
	if len(a.Services) == 0 || a.TotalCents <= 0 {
		missing = append(missing, "services")
	}
	return missing
}
