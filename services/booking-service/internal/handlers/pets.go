package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

type createPetRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	Species   string  `json:"species" validate:"required,max=50"`
	Breed     string  `json:"breed" validate:"max=100"`
	BirthDate string  `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	WeightKg  float64 `json:"weight_kg" validate:"min=0"`
	Notes     string  `json:"notes" validate:"max=2000"`
}

func (h *BookingHandler) CreatePet(w http.ResponseWriter, r *http.Request) {
	var req createPetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	pet, err := h.svc.CreatePet(r.Context(), principal(r), model.Pet{
		Name:      req.Name,
		Species:   req.Species,
		Breed:     req.Breed,
		BirthDate: req.BirthDate,
		WeightKg:  req.WeightKg,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPet(pet))
}

func (h *BookingHandler) ListPets(w http.ResponseWriter, r *http.Request) {
	pets, err := h.svc.ListPets(r.Context(), principal(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]petResponse, 0, len(pets))
	for _, p := range pets {
		items = append(items, toPet(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"pets": items})
}
