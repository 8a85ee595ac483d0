// Package tokens signs access tokens with either a shared HS256 secret or a
// set of RS256 keys published as JWKS.
package tokens

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
)

var (
	ErrRotationUnsupported = errors.New("key rotation requires RS256 keys")
	ErrUnknownKid          = errors.New("unknown kid")
)

type Signer interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	// JWKS is empty for HS256.
	JWKS() auth.JWKS
	ActiveKid() string
	SetActiveKid(kid string) error
}

type HS256Signer struct {
	secret string
}

func NewHS256Signer(secret string) *HS256Signer {
	return &HS256Signer{secret: secret}
}

func (s *HS256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *HS256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *HS256Signer) JWKS() auth.JWKS { return auth.JWKS{Keys: []auth.JWK{}} }

func (s *HS256Signer) ActiveKid() string { return "" }

func (s *HS256Signer) SetActiveKid(string) error { return ErrRotationUnsupported }

// RSASigner signs with the active key and verifies with any loaded key, so
// tokens issued before a rotation stay valid until they expire.
type RSASigner struct {
	mu     sync.RWMutex
	active string
	keys   map[string]*rsa.PrivateKey
}

func NewRSASigner(keys map[string]*rsa.PrivateKey, activeKid string) (*RSASigner, error) {
	if len(keys) == 0 {
		return nil, errors.New("no rsa keys provided")
	}
	if activeKid == "" {
		kids := make([]string, 0, len(keys))
		for kid := range keys {
			kids = append(kids, kid)
		}
		sort.Strings(kids)
		activeKid = kids[0]
	}
	if keys[activeKid] == nil {
		return nil, fmt.Errorf("active kid %q not found", activeKid)
	}
	return &RSASigner{active: activeKid, keys: keys}, nil
}

func (s *RSASigner) Sign(claims auth.Claims) (string, error) {
	s.mu.RLock()
	kid, key := s.active, s.keys[s.active]
	s.mu.RUnlock()
	return auth.SignRS256(claims, key, kid)
}

func (s *RSASigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	key := s.keys[header.Kid]
	s.mu.RUnlock()
	if header.Kid == "" || key == nil {
		return nil, auth.ErrInvalidToken
	}
	return auth.VerifyRS256(token, &key.PublicKey)
}

func (s *RSASigner) JWKS() auth.JWKS {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := auth.JWKS{Keys: make([]auth.JWK, 0, len(s.keys))}
	for kid, key := range s.keys {
		out.Keys = append(out.Keys, auth.PublicJWK(kid, &key.PublicKey))
	}
	sort.Slice(out.Keys, func(i, j int) bool { return out.Keys[i].Kid < out.Keys[j].Kid })
	return out
}

func (s *RSASigner) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *RSASigner) SetActiveKid(kid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[kid] == nil {
		return ErrUnknownKid
	}
	s.active = kid
	return nil
}

// ParseKeySet reads every RSA private key in a PEM bundle, keyed by a kid
// derived from the public modulus.
func ParseKeySet(bundle []byte) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := parsePrivateKey(block)
		if err != nil {
			return nil, err
		}
		keys[KeyID(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

func parsePrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", block.Type, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an rsa key", block.Type)
	}
	return rsaKey, nil
}

func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}
