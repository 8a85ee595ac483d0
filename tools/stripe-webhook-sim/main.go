// stripe-webhook-sim posts a signed Stripe checkout event to a local
// stack so the payment flow can be exercised without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	_ = config.LoadDotenv()
	var (
		baseURL     = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		evtType     = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "checkout.session.completed or checkout.session.expired")
		appointment = flag.String("appointment-id", config.String("APPOINTMENT_ID", ""), "appointment_id metadata")
		owner       = flag.String("owner-id", config.String("OWNER_ID", ""), "owner_id metadata")
		sessionID   = flag.String("session-id", config.String("CHECKOUT_SESSION_ID", "cs_test_123"), "checkout session id returned by POST /api/v1/payments/checkout")
		intentID    = flag.String("payment-intent", config.String("PAYMENT_INTENT_ID", "pi_test_123"), "payment intent id")
		secret      = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, session{
		ID:            *sessionID,
		AppointmentID: *appointment,
		OwnerID:       *owner,
		IntentID:      *intentID,
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

type session struct {
	ID            string
	AppointmentID string
	OwnerID       string
	IntentID      string
}

func buildEventJSON(eventID, eventType string, t time.Time, s session) ([]byte, error) {
	object := map[string]any{
		"id":                  s.ID,
		"object":              "checkout.session",
		"client_reference_id": s.AppointmentID,
		"metadata": map[string]any{
			"appointment_id": s.AppointmentID,
			"owner_id":       s.OwnerID,
		},
	}
	switch eventType {
	case "checkout.session.completed":
		object["status"] = "complete"
		object["payment_intent"] = s.IntentID
	case "checkout.session.expired":
		object["status"] = "expired"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
