package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/stripe/stripe-go/v79/webhook"
)

// maxWebhookBytes matches the largest event body Stripe sends.
const maxWebhookBytes = 64 << 10

// StripeWebhook verifies and applies a Stripe event. The signature is the
// only authentication; the gateway exposes this path without a JWT.
// Redelivered events answer 200 "duplicate" so Stripe stops retrying.
func (h *PaymentsHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripeWebhookSecret == "" {
		h.writeErr(w, r, apperr.Upstream("stripe webhook not configured", nil))
		return
	}
	sig := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
	if sig == "" {
		h.writeErr(w, r, apperr.Validation("missing Stripe-Signature header"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErr(w, r, apperr.Validation("webhook payload too large"))
			return
		}
		h.writeErr(w, r, apperr.Validation("failed to read request body"))
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sig, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		h.writeErr(w, r, apperr.Validation("invalid signature"))
		return
	}

	log := h.logger.With(
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"provider_event_id", evt.ID,
		"event_type", string(evt.Type),
	)
	log.Info("stripe event received", "created_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339))

	duplicate, err := h.svc.ApplyStripeEvent(r.Context(), evt, body)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	status := "ok"
	if duplicate {
		status = "duplicate"
		log.Info("stripe event already applied")
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
