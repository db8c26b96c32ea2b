package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mindwell-app/authcore/internal/service"

	"gotest.tools/v3/assert"
)

type fakeKeySet struct {
	server     *httptest.Server
	signingKey *rsa.PrivateKey
	fetches    atomic.Int64
}

func newFakeKeySet(t *testing.T) *fakeKeySet {
	t.Helper()

	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NilError(t, err)

	keySet := &fakeKeySet{signingKey: signingKey}

	keySet.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keySet.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{
				{
					"kty": "RSA",
					"kid": testKid,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(signingKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(signingKey.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(keySet.server.Close)

	return keySet
}

func TestJWKSGetKeyCaches(t *testing.T) {
	// Setup
	keySet := newFakeKeySet(t)

	jwks := service.NewJWKSService(service.JWKSServiceConfig{
		CacheExpiry: 300,
		Timeout:     5,
	})

	// Test
	key, err := jwks.GetKey(context.Background(), keySet.server.URL, testKid)

	assert.NilError(t, err)
	assert.Equal(t, key.E, keySet.signingKey.E)
	assert.Equal(t, keySet.fetches.Load(), int64(1))

	// A fresh entry serves repeat lookups without touching the endpoint
	for range 5 {
		_, err := jwks.GetKey(context.Background(), keySet.server.URL, testKid)
		assert.NilError(t, err)
	}

	assert.Equal(t, keySet.fetches.Load(), int64(1))

	// An unknown kid inside the fetch floor fails without a round trip
	_, err = jwks.GetKey(context.Background(), keySet.server.URL, "never-published")
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, keySet.fetches.Load(), int64(1))
}

func TestJWKSGetKeyStaleEntryHonorsFetchFloor(t *testing.T) {
	// Setup: a zero expiry makes every cached entry stale immediately
	keySet := newFakeKeySet(t)

	jwks := service.NewJWKSService(service.JWKSServiceConfig{
		CacheExpiry: 0,
		Timeout:     5,
	})

	_, err := jwks.GetKey(context.Background(), keySet.server.URL, testKid)
	assert.NilError(t, err)
	assert.Equal(t, keySet.fetches.Load(), int64(1))

	// Test: stale lookups inside the floor serve the cached key
	for range 5 {
		key, err := jwks.GetKey(context.Background(), keySet.server.URL, testKid)
		assert.NilError(t, err)
		assert.Equal(t, key.E, keySet.signingKey.E)
	}

	assert.Equal(t, keySet.fetches.Load(), int64(1))

	// An unknown kid inside the floor fails without a round trip
	_, err = jwks.GetKey(context.Background(), keySet.server.URL, "never-published")
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, keySet.fetches.Load(), int64(1))
}
