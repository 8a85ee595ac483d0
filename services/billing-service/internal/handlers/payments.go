package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
)

type Config struct {
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

type PaymentsHandler struct {
	svc                    *payments.Service
	logger                 *slog.Logger
	writeErr               auth.ErrorWriter
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

func New(svc *payments.Service, logger *slog.Logger, cfg Config) *PaymentsHandler {
	tolerance := cfg.StripeWebhookTolerance
	if tolerance <= 0 {
		tolerance = 300 * time.Second
	}
	return &PaymentsHandler{
		svc:                    svc,
		logger:                 logger,
		writeErr:               httpx.ErrorWriter(logger),
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: tolerance,
	}
}

// Register mounts the payments API. The webhook and the checkout return
// endpoints are public; Stripe and the redirected customer carry no JWT.
func (h *PaymentsHandler) Register(mux *http.ServeMux) {
	owner := auth.RequireRole(h.writeErr, auth.RolePetOwner)
	ownerOrAdmin := auth.RequireRole(h.writeErr, auth.RolePetOwner, auth.RoleAdmin)
	admin := auth.RequireRole(h.writeErr, auth.RoleAdmin)

	mux.Handle("POST /api/v1/payments/checkout", owner(http.HandlerFunc(h.Checkout)))
	mux.HandleFunc("GET /api/v1/payments/checkout/session", h.CheckoutSessionStatus)
	mux.HandleFunc("POST /api/v1/payments/checkout/session/ack", h.AckCheckoutReturn)
	mux.HandleFunc("POST /api/v1/payments/webhooks/stripe", h.StripeWebhook)

	mux.Handle("GET /api/v1/payments/{appointment_id}", ownerOrAdmin(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/v1/payments/{appointment_id}/capture", admin(http.HandlerFunc(h.Capture)))
	mux.Handle("POST /api/v1/payments/{appointment_id}/release", admin(http.HandlerFunc(h.Release)))
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

type paymentResponse struct {
	AppointmentID     string `json:"appointment_id"`
	Status            string `json:"status"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	PaymentIntentID   string `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	AuthorizedAt      string `json:"authorized_at,omitempty"`
	CapturedAt        string `json:"captured_at,omitempty"`
	ReleasedAt        string `json:"released_at,omitempty"`
}

func toPayment(p payments.Payment) paymentResponse {
	return paymentResponse{
		AppointmentID:     p.AppointmentID,
		Status:            string(p.Status),
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		PaymentIntentID:   p.PaymentIntentID,
		CheckoutSessionID: p.CheckoutSessionID,
		AuthorizedAt:      formatTimePtr(p.AuthorizedAt),
		CapturedAt:        formatTimePtr(p.CapturedAt),
		ReleasedAt:        formatTimePtr(p.ReleasedAt),
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type checkoutRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required,uuid"`
	SuccessURL    string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL     string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

func (h *PaymentsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.CreateCheckout(r.Context(), principal(r), payments.CheckoutInput{
		AppointmentID:  req.AppointmentID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": res.SessionID,
		"url":        res.URL,
		"payment":    toPayment(res.Payment),
	})
}

// CheckoutSessionStatus returns non-sensitive session state to the public
// return pages.
func (h *PaymentsHandler) CheckoutSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		h.writeErr(w, r, apperr.Validation("session_id is required"))
		return
	}
	sess, err := h.svc.SessionStatus(r.Context(), sessionID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	resp := map[string]any{
		"session_id":     sess.StripeSessionID,
		"appointment_id": sess.AppointmentID,
		"status":         sess.Status,
		"updated_at":     sess.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if sess.CompletedAt != nil {
		resp["completed_at"] = formatTimePtr(sess.CompletedAt)
	}
	if sess.CanceledAt != nil {
		resp["canceled_at"] = formatTimePtr(sess.CanceledAt)
	}
	if sess.ExpiredAt != nil {
		resp["expired_at"] = formatTimePtr(sess.ExpiredAt)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type checkoutAckRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	State     string `json:"state" validate:"required"`
	Result    string `json:"result" validate:"required,oneof=success cancel"`
}

// AckCheckoutReturn is public but scoped by the per-session return token.
func (h *PaymentsHandler) AckCheckoutReturn(w http.ResponseWriter, r *http.Request) {
	var req checkoutAckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.AckReturn(r.Context(), req.SessionID, req.State, req.Result); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *PaymentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	pay, err := h.svc.Get(r.Context(), principal(r), r.PathValue("appointment_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPayment(pay))
}

func (h *PaymentsHandler) Capture(w http.ResponseWriter, r *http.Request) {
	pay, err := h.svc.Capture(r.Context(), principal(r), r.PathValue("appointment_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPayment(pay))
}

func (h *PaymentsHandler) Release(w http.ResponseWriter, r *http.Request) {
	pay, err := h.svc.Release(r.Context(), principal(r), r.PathValue("appointment_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPayment(pay))
}
