package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWKSClientThrottlesUnknownKids(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var fetches atomic.Int32
	var published atomic.Pointer[JWKS]
	published.Store(&JWKS{Keys: []JWK{PublicJWK("kid-1", &key.PublicKey)}})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(published.Load())
	}))
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Hour, srv.Client())
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err = c.Get(ctx, "kid-1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = c.Get(ctx, "made-up")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.Equal(t, int32(1), fetches.Load())

	// A rotated key shows up once the throttle window has passed.
	published.Store(&JWKS{Keys: []JWK{PublicJWK("kid-1", &key.PublicKey), PublicJWK("kid-2", &key.PublicKey)}})
	now = now.Add(MinJWKSRefresh + time.Second)
	got, err := c.Get(ctx, "kid-2")
	require.NoError(t, err)
	assert.Zero(t, key.PublicKey.N.Cmp(got.N))
	assert.Equal(t, int32(2), fetches.Load())
}

func TestJWKSClientSkipsNonSigningKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	enc := PublicJWK("enc-1", &key.PublicKey)
	enc.Use = "enc"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{enc}})
	}))
	defer srv.Close()

	_, err = NewJWKSClient(srv.URL, time.Minute, srv.Client()).Get(context.Background(), "enc-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestJWKSClientServesStaleKeyWhenEndpointDown(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{PublicJWK("kid-1", &key.PublicKey)}})
	}))
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Minute, srv.Client())
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err = c.Get(context.Background(), "kid-1")
	require.NoError(t, err)

	down.Store(true)
	now = now.Add(2 * time.Minute)
	_, err = c.Get(context.Background(), "kid-1")
	assert.NoError(t, err)
}
