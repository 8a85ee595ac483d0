package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/httpx"
)

type tokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type upstreams struct {
	Identity     *url.URL
	Booking      *url.URL
	Billing      *url.URL
	Notification *url.URL
}

func newProxy(target *url.URL, logger *slog.Logger, transport http.RoundTripper) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "upstream request failed",
			"upstream", target.Host,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, apperr.Upstream("upstream unavailable", err))
	}
	return proxy
}

// registerRoutes mounts the public route table. Every route drops
// client-supplied identity headers; protected routes then verify the bearer
// token and forward the principal upstream.
func registerRoutes(mux *http.ServeMux, up upstreams, verifier tokenVerifier, logger *slog.Logger, transport http.RoundTripper) {
	writeErr := httpx.ErrorWriter(logger)
	identity := newProxy(up.Identity, logger, transport)
	booking := newProxy(up.Booking, logger, transport)
	billing := newProxy(up.Billing, logger, transport)
	stream := newProxy(up.Notification, logger, transport)
	// Flush every write so server-sent events reach the client immediately.
	stream.FlushInterval = -1

	public := func(h http.Handler) http.Handler { return stripIdentity(h) }
	authed := func(h http.Handler, roles ...auth.Role) http.Handler {
		return stripIdentity(requireAuth(verifier, writeErr)(auth.RequireRole(writeErr, roles...)(h)))
	}

	mux.Handle("/api/v1/auth/", public(identity))
	mux.Handle("GET /api/v1/auth/me", authed(identity))
	mux.Handle("GET /.well-known/jwks.json", public(identity))
	mux.Handle("POST /api/v1/waitlist", public(identity))
	registerPrefix(mux, "/api/v1/admin", authed(identity, auth.RoleAdmin))

	registerPrefix(mux, "/api/v1/appointments", authed(booking))
	registerPrefix(mux, "/api/v1/pets", authed(booking, auth.RolePetOwner))
	registerPrefix(mux, "/api/v1/catalog", authed(booking))
	registerPrefix(mux, "/api/v1/slots", authed(booking))
	registerPrefix(mux, "/api/v1/notifications", authed(booking))
	mux.Handle("GET /api/v1/notifications/stream", authed(stream))

	// Stripe and the redirected customer carry no JWT; the webhook signature
	// and the per-session return token scope these.
	mux.Handle("POST /api/v1/payments/webhooks/stripe", public(billing))
	mux.Handle("GET /api/v1/payments/checkout/session", public(billing))
	mux.Handle("POST /api/v1/payments/checkout/session/ack", public(billing))
	registerPrefix(mux, "/api/v1/payments", authed(billing))

	mux.HandleFunc("GET /payments/success", checkoutReturnPage("success"))
	mux.HandleFunc("GET /payments/cancel", checkoutReturnPage("cancel"))
	mux.HandleFunc("GET /openapi", serveOpenAPI)
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPI)
}

func registerPrefix(mux *http.ServeMux, prefix string, h http.Handler) {
	mux.Handle(prefix, h)
	mux.Handle(prefix+"/", h)
}

func stripIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.StripHeaders(r.Header)
		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the bearer token, installs the principal for role
// checks at this hop and forwards it upstream as trusted headers.
func requireAuth(verifier tokenVerifier, writeErr auth.ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				token, ok = streamToken(r)
			}
			if !ok {
				writeErr(w, r, apperr.Unauthorized("missing or invalid Authorization header"))
				return
			}
			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeErr(w, r, apperr.Unauthorized("invalid token"))
				return
			}
			if claims.Subject == "" || !claims.Role.Valid() {
				writeErr(w, r, apperr.Unauthorized("invalid token claims"))
				return
			}
			p := auth.Principal{UserID: claims.Subject, Role: claims.Role}
			auth.SetHeaders(r.Header, p)
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// streamToken accepts ?access_token= on the event stream only, since
// browsers cannot set headers on an EventSource.
func streamToken(r *http.Request) (string, bool) {
	if r.URL.Path != "/api/v1/notifications/stream" {
		return "", false
	}
	q := r.URL.Query()
	tok := strings.TrimSpace(q.Get("access_token"))
	q.Del("access_token")
	r.URL.RawQuery = q.Encode()
	return tok, tok != ""
}
