package auth

import (
	"net/http"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
)

// ErrorWriter renders an error response. Services pass httpx.WriteError.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// WithTrustedHeaders rebuilds the Principal from the headers set by the
// gateway. Services sit behind the gateway and never see client-supplied
// values for these headers.
func WithTrustedHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		role, ok := ParseRole(r.Header.Get(HeaderRole))
		if userID != "" && ok {
			r = r.WithContext(WithPrincipal(r.Context(), Principal{UserID: userID, Role: role}))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests without a principal (401) or whose role is
// not listed (403). With no roles any authenticated caller passes.
func RequireRole(writeErr ErrorWriter, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeErr(w, r, apperr.Unauthorized("authentication required"))
				return
			}
			if len(roles) > 0 && !p.Is(roles...) {
				writeErr(w, r, apperr.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
