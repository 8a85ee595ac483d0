// Package bookingclient reads appointments from booking-service over HTTP.
package bookingclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the booking service at baseURL. A nil transport
// uses http.DefaultTransport; either way requests are traced.
func New(baseURL string, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(transport),
		},
	}
}

// GetAppointment forwards the caller's principal so booking applies its own
// visibility rules. Booking's error kinds pass through unchanged.
func (c *Client) GetAppointment(ctx context.Context, p auth.Principal, id string) (payments.Appointment, error) {
	if c.baseURL == "" {
		return payments.Appointment{}, apperr.Upstream("booking service not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/appointments/"+url.PathEscape(id), nil)
	if err != nil {
		return payments.Appointment{}, apperr.Internal("build booking request", err)
	}
	auth.SetHeaders(req.Header, p)
	req.Header.Set("Accept", "application/json")
	if reqID := httpx.RequestIDFromContext(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return payments.Appointment{}, apperr.Upstream("booking service unavailable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payments.Appointment{}, apperr.Upstream("read booking response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return payments.Appointment{}, decodeError(resp.StatusCode, body)
	}
	var out payments.Appointment
	if err := json.Unmarshal(body, &out); err != nil {
		return payments.Appointment{}, apperr.Upstream("decode booking response", err)
	}
	return out, nil
}

func decodeError(status int, body []byte) error {
	var e httpx.ErrorBody
	_ = json.Unmarshal(body, &e)
	switch apperr.Kind(e.Kind) {
	case apperr.KindNotFound, apperr.KindForbidden, apperr.KindUnauthorized, apperr.KindValidation, apperr.KindConflict:
		return apperr.New(apperr.Kind(e.Kind), e.Error)
	}
	if status == http.StatusNotFound {
		return apperr.NotFound("appointment not found")
	}
	return apperr.Upstream("booking service error", fmt.Errorf("status %d", status))
}
