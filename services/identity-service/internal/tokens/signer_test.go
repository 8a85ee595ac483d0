package tokens

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func claims() auth.Claims {
	return auth.NewClaims("user-1", "sam@example.com", auth.RoleVet, "vetcall-identity", time.Hour)
}

func TestHS256Signer(t *testing.T) {
	s := NewHS256Signer("secret")
	tok, err := s.Sign(claims())
	require.NoError(t, err)

	got, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
	assert.Empty(t, s.JWKS().Keys)
	assert.ErrorIs(t, s.SetActiveKid("x"), ErrRotationUnsupported)
}

func TestRSASignerRotationKeepsOldTokensValid(t *testing.T) {
	k1, k2 := newKey(t), newKey(t)
	kid1, kid2 := KeyID(&k1.PublicKey), KeyID(&k2.PublicKey)
	s, err := NewRSASigner(map[string]*rsa.PrivateKey{kid1: k1, kid2: k2}, kid1)
	require.NoError(t, err)

	old, err := s.Sign(claims())
	require.NoError(t, err)
	h, err := auth.ParseHeader(old)
	require.NoError(t, err)
	assert.Equal(t, kid1, h.Kid)

	require.NoError(t, s.SetActiveKid(kid2))
	fresh, err := s.Sign(claims())
	require.NoError(t, err)
	h, err = auth.ParseHeader(fresh)
	require.NoError(t, err)
	assert.Equal(t, kid2, h.Kid)

	for _, tok := range []string{old, fresh} {
		got, err := s.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleVet, got.Role)
	}
	assert.Len(t, s.JWKS().Keys, 2)
	assert.ErrorIs(t, s.SetActiveKid("nope"), ErrUnknownKid)
}

func TestRSASignerRejectsForeignKey(t *testing.T) {
	k1, other := newKey(t), newKey(t)
	s, err := NewRSASigner(map[string]*rsa.PrivateKey{KeyID(&k1.PublicKey): k1}, "")
	require.NoError(t, err)

	tok, err := auth.SignRS256(claims(), other, KeyID(&other.PublicKey))
	require.NoError(t, err)
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseKeySet(t *testing.T) {
	k1, k2 := newKey(t), newKey(t)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(k2)
	require.NoError(t, err)
	bundle := append(
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k1)}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})...,
	)

	keys, err := ParseKeySet(bundle)
	require.NoError(t, err)
	assert.Contains(t, keys, KeyID(&k1.PublicKey))
	assert.Contains(t, keys, KeyID(&k2.PublicKey))

	_, err = ParseKeySet([]byte("not pem"))
	assert.Error(t, err)
}
