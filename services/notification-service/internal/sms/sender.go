package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxBodyRunes keeps a message inside one GSM segment.
const MaxBodyRunes = 160

var ErrInvalidNumber = errors.New("sms: recipient is not an E.164 number")

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// New picks a sender by provider name. "noop" and "" disable SMS and return
// nil so callers can skip the channel entirely.
func New(provider, url, token string) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "noop", "none":
		return nil, nil
	case "webhook":
		if strings.TrimSpace(url) == "" {
			return nil, errors.New("SMS_WEBHOOK_URL is required for the webhook provider")
		}
		return NewWebhookSender(url, token), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", provider)
	}
}

// WebhookSender posts {"to","body"} JSON to a relay that talks to the
// actual SMS gateway.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, to string, body string) error {
	to, err := NormalizeNumber(to)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(map[string]string{"to": to, "body": Truncate(body)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

// NormalizeNumber strips spaces, dashes, dots and parentheses and requires
// the "+<country><number>" E.164 form of 8 to 15 digits.
func NormalizeNumber(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidNumber
		}
	}
	n := b.String()
	if !strings.HasPrefix(n, "+") || len(n) < 9 || len(n) > 16 || n[1] == '0' {
		return "", ErrInvalidNumber
	}
	return n, nil
}

// Truncate shortens body to MaxBodyRunes, ending in "..." when cut.
func Truncate(body string) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= MaxBodyRunes {
		return body
	}
	runes := []rune(body)
	return strings.TrimSpace(string(runes[:MaxBodyRunes-3])) + "..."
}
