package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
)

type AuthHandler struct {
	svc      *accounts.Service
	logger   *slog.Logger
	writeErr auth.ErrorWriter
}

func NewAuthHandler(svc *accounts.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger, writeErr: httpx.ErrorWriter(logger)}
}

// Register mounts the session and waitlist API. Everything except /me and
// the admin routes is reachable without a token.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	anyone := auth.RequireRole(h.writeErr)
	admin := auth.RequireRole(h.writeErr, auth.RoleAdmin)

	mux.HandleFunc("POST /api/v1/auth/register", h.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.Handle("GET /api/v1/auth/me", anyone(http.HandlerFunc(h.Me)))
	mux.HandleFunc("GET /api/v1/auth/jwks", h.JWKS)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)

	mux.HandleFunc("POST /api/v1/waitlist", h.JoinWaitlist)

	mux.Handle("GET /api/v1/admin/users", admin(http.HandlerFunc(h.ListUsers)))
	mux.Handle("PATCH /api/v1/admin/users/{id}", admin(http.HandlerFunc(h.UpdateUser)))
	mux.Handle("GET /api/v1/admin/waitlist", admin(http.HandlerFunc(h.ListWaitlist)))
	mux.Handle("POST /api/v1/admin/waitlist/{id}/approve", admin(http.HandlerFunc(h.ApproveWaitlist)))
	mux.Handle("POST /api/v1/admin/waitlist/{id}/reject", admin(http.HandlerFunc(h.RejectWaitlist)))
	mux.Handle("GET /api/v1/admin/audit", admin(http.HandlerFunc(h.Audit)))
	mux.Handle("POST /api/v1/admin/jwt/rotate", admin(http.HandlerFunc(h.Rotate)))
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=200"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	sess, err := h.svc.Register(r.Context(), accounts.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toSession(sess))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSession(sess))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	sess, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSession(sess))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), principal(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUser(u))
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, h.svc.JWKS())
}

type joinWaitlistRequest struct {
	Email         string `json:"email" validate:"required,email"`
	FullName      string `json:"full_name" validate:"required,max=200"`
	Phone         string `json:"phone" validate:"omitempty,e164"`
	LicenseNumber string `json:"license_number" validate:"required,max=100"`
	ServiceArea   string `json:"service_area" validate:"max=200"`
	Message       string `json:"message" validate:"max=2000"`
}

func (h *AuthHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req joinWaitlistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	entry, err := h.svc.JoinWaitlist(r.Context(), accounts.JoinInput{
		Email:         req.Email,
		FullName:      req.FullName,
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
		ServiceArea:   req.ServiceArea,
		Message:       req.Message,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": entry.ID, "status": entry.Status})
}
