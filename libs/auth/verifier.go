package auth

import (
	"context"
	"crypto/rsa"
	"strings"
)

// KeySource resolves RS256 verification keys by kid.
type KeySource interface {
	Get(ctx context.Context, keyID string) (*rsa.PublicKey, error)
}

// Verifier checks bearer tokens. RS256 tokens with a kid are verified
// against Keys when configured; everything else falls back to the shared
// HS256 secret.
type Verifier struct {
	Secret string
	Keys   KeySource
}

func (v Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if v.Keys != nil {
		header, err := ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.Keys.Get(ctx, header.Kid)
			if err != nil {
				return nil, ErrInvalidToken
			}
			return VerifyRS256(token, pub)
		}
	}
	if v.Secret == "" {
		return nil, ErrInvalidToken
	}
	return ParseAndVerifyHS256(token, v.Secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
