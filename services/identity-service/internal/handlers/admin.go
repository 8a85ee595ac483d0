package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
)

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(key + " must be an integer")
	}
	return n, nil
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	q := accounts.UserQuery{
		Role:   auth.Role(r.URL.Query().Get("role")),
		Email:  r.URL.Query().Get("email"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("disabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeErr(w, r, apperr.Validation("disabled must be a boolean"))
			return
		}
		q.Disabled = &v
	}
	users, err := h.svc.ListUsers(r.Context(), principal(r), q)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUser(u))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

type updateUserRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=pet_owner vet admin"`
	Disabled *bool   `json:"disabled"`
	FullName *string `json:"full_name" validate:"omitempty,max=200"`
	Phone    *string `json:"phone" validate:"omitempty,e164"`
}

func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	patch := accounts.UserPatch{Disabled: req.Disabled, FullName: req.FullName, Phone: req.Phone}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		patch.Role = &role
	}
	u, err := h.svc.UpdateUser(r.Context(), principal(r), r.PathValue("id"), patch)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUser(u))
}

func (h *AuthHandler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	entries, err := h.svc.ListWaitlist(r.Context(), principal(r), accounts.WaitlistStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]waitlistResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toWaitlist(e))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

type reviewRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

func (h *AuthHandler) ApproveWaitlist(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.ApproveWaitlist)
}

func (h *AuthHandler) RejectWaitlist(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.RejectWaitlist)
}

type reviewFunc func(ctx context.Context, p auth.Principal, id, note string) (accounts.WaitlistEntry, error)

// review accepts an empty body; the note is optional.
func (h *AuthHandler) review(w http.ResponseWriter, r *http.Request, fn reviewFunc) {
	var req reviewRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	entry, err := fn(r.Context(), principal(r), r.PathValue("id"), req.Note)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toWaitlist(entry))
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	evts, err := h.svc.ListAudit(r.Context(), principal(r), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]auditResponse, 0, len(evts))
	for _, e := range evts {
		out = append(out, auditResponse{
			ID:        e.ID,
			EventType: e.EventType,
			ActorID:   e.ActorID,
			SubjectID: e.SubjectID,
			Metadata:  e.Metadata,
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

type rotateRequest struct {
	ActiveKid string `json:"active_kid" validate:"required"`
}

func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.Rotate(r.Context(), principal(r), req.ActiveKid); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"active_kid": req.ActiveKid})
}
