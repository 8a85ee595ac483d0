package auth

import (
	"context"
	"net/http"
	"strings"
)

type Role string

const (
	RolePetOwner Role = "pet_owner"
	RoleVet      Role = "vet"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePetOwner, RoleVet, RoleAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	return r, r.Valid()
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Headers used by the gateway to forward a verified principal upstream.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
)

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// SetHeaders writes p onto outbound request headers, replacing any values
// already present.
func SetHeaders(h http.Header, p Principal) {
	h.Set(HeaderUserID, p.UserID)
	h.Set(HeaderRole, string(p.Role))
}

func StripHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderRole)
}
