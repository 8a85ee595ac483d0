package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
)

type BookingHandler struct {
	svc      *workflow.Service
	logger   *slog.Logger
	writeErr auth.ErrorWriter
}

func NewBookingHandler(svc *workflow.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger, writeErr: httpx.ErrorWriter(logger)}
}

// Register mounts the booking API on mux. Every route expects the principal
// installed by auth.WithTrustedHeaders.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	anyone := auth.RequireRole(h.writeErr)
	owner := auth.RequireRole(h.writeErr, auth.RolePetOwner)
	vet := auth.RequireRole(h.writeErr, auth.RoleVet)
	ownerOrAdmin := auth.RequireRole(h.writeErr, auth.RolePetOwner, auth.RoleAdmin)

	mux.Handle("GET /api/v1/catalog", anyone(http.HandlerFunc(h.Catalog)))
	mux.Handle("GET /api/v1/slots", anyone(http.HandlerFunc(h.Slots)))

	mux.Handle("POST /api/v1/appointments/draft", owner(http.HandlerFunc(h.Draft)))
	mux.Handle("GET /api/v1/appointments", anyone(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/v1/appointments/{id}", anyone(http.HandlerFunc(h.Get)))
	mux.Handle("PATCH /api/v1/appointments/{id}", owner(http.HandlerFunc(h.UpdateDraft)))
	mux.Handle("DELETE /api/v1/appointments/{id}", ownerOrAdmin(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", ownerOrAdmin(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /api/v1/appointments/{id}/accept", vet(http.HandlerFunc(h.Accept)))
	mux.Handle("POST /api/v1/appointments/{id}/decline", vet(http.HandlerFunc(h.Decline)))
	mux.Handle("POST /api/v1/appointments/{id}/propose", vet(http.HandlerFunc(h.Propose)))
	mux.Handle("POST /api/v1/appointments/{id}/respond", owner(http.HandlerFunc(h.Respond)))
	mux.Handle("POST /api/v1/appointments/{id}/start", vet(http.HandlerFunc(h.Start)))
	mux.Handle("POST /api/v1/appointments/{id}/complete", vet(http.HandlerFunc(h.Complete)))
	mux.Handle("GET /api/v1/appointments/{id}/proposals", anyone(http.HandlerFunc(h.Proposals)))
	mux.Handle("GET /api/v1/appointments/{id}/report", anyone(http.HandlerFunc(h.Report)))

	mux.Handle("POST /api/v1/pets", owner(http.HandlerFunc(h.CreatePet)))
	mux.Handle("GET /api/v1/pets", owner(http.HandlerFunc(h.ListPets)))

	mux.Handle("GET /api/v1/notifications", anyone(http.HandlerFunc(h.Notifications)))
	mux.Handle("POST /api/v1/notifications/read-all", anyone(http.HandlerFunc(h.MarkAllRead)))
	mux.Handle("POST /api/v1/notifications/{id}/read", anyone(http.HandlerFunc(h.MarkRead)))
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// expectedVersion reads the optional If-Match header; zero means the caller
// did not assert a version.
func expectedVersion(r *http.Request) (int64, error) {
	v, ok, err := httpx.IfMatchVersion(r)
	if err != nil || !ok {
		return 0, err
	}
	return v, nil
}

func (h *BookingHandler) writeAppointment(w http.ResponseWriter, status int, a model.Appointment) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(a.Version, 10)))
	httpx.WriteJSON(w, status, toAppointment(a))
}

func (h *BookingHandler) Draft(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetOrCreateDraft(r.Context(), principal(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeErr(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	list, err := h.svc.List(r.Context(), principal(r), model.Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]appointmentResponse, 0, len(list))
	for _, a := range list {
		items = append(items, toAppointment(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type updateDraftRequest struct {
	PetID        *string  `json:"pet_id"`
	VetID        *string  `json:"vet_id"`
	Date         *string  `json:"date" validate:"omitnil,datetime=2006-01-02"`
	TimeSlot     *string  `json:"time_slot"`
	Address      *string  `json:"address" validate:"omitnil,max=500"`
	Notes        *string  `json:"notes" validate:"omitnil,max=2000"`
	ServiceCodes []string `json:"services" validate:"omitempty,max=20,dive,required"`
}

func (h *BookingHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req updateDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.UpdateDraft(r.Context(), principal(r), r.PathValue("id"), workflow.DraftPatch{
		PetID:        req.PetID,
		VetID:        req.VetID,
		Date:         req.Date,
		TimeSlot:     req.TimeSlot,
		Address:      req.Address,
		Notes:        req.Notes,
		ServiceCodes: req.ServiceCodes,
	}, expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

type acceptRequest struct {
	Start bool `json:"start"`
}

func (h *BookingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.Accept(r.Context(), principal(r), r.PathValue("id"), req.Start, expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

type declineRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.Decline(r.Context(), principal(r), r.PathValue("id"), req.Reason, expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

type proposeRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"time_slot" validate:"required"`
	Message  string `json:"message" validate:"max=1000"`
}

func (h *BookingHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.Propose(r.Context(), principal(r), r.PathValue("id"), req.Date, req.TimeSlot, req.Message, expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

type respondRequest struct {
	Decision   string `json:"decision" validate:"required,oneof=accept_proposal decline_proposal"`
	ProposalID string `json:"proposal_id" validate:"omitempty,uuid"`
}

func (h *BookingHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.OwnerRespond(r.Context(), principal(r), r.PathValue("id"), workflow.Decision(req.Decision), req.ProposalID, expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, err := h.svc.Start(r.Context(), principal(r), r.PathValue("id"), expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeAppointment(w, http.StatusOK, a)
}

type completeRequest struct {
	Diagnosis      string `json:"diagnosis" validate:"required,max=4000"`
	Treatment      string `json:"treatment" validate:"max=4000"`
	Medications    string `json:"medications" validate:"max=4000"`
	FollowUpNotes  string `json:"follow_up_notes" validate:"max=4000"`
	FollowUpNeeded bool   `json:"follow_up_needed"`
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	a, report, err := h.svc.Complete(r.Context(), principal(r), r.PathValue("id"), workflow.ReportInput{
		Diagnosis:      req.Diagnosis,
		Treatment:      req.Treatment,
		Medications:    req.Medications,
		FollowUpNotes:  req.FollowUpNotes,
		FollowUpNeeded: req.FollowUpNeeded,
	}, expected)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(a.Version, 10)))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"appointment":     toAppointment(a),
		"clinical_report": toReport(report),
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.Cancel(r.Context(), principal(r), r.PathValue("id"), expected); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Proposals(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Proposals(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	items := make([]proposalResponse, 0, len(list))
	for _, p := range list {
		items = append(items, proposalResponse{
			ID:        p.ID,
			VetID:     p.VetID,
			Date:      p.Date,
			TimeSlot:  p.TimeSlot,
			Message:   p.Message,
			Status:    string(p.Status),
			CreatedAt: formatTime(p.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"proposals": items})
}

func (h *BookingHandler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.ClinicalReport(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReport(rep))
}

func (h *BookingHandler) Catalog(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": h.svc.Catalog().List()})
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.svc.Slots(r.Context(), q.Get("date"), q.Get("vet_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"date": q.Get("date"), "slots": slots})
}
