package service

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// minRefetchInterval caps how often an unknown kid can trigger a network
// fetch, so bogus key IDs cannot be used to hammer the provider.
const minRefetchInterval = 30 * time.Second

type JWKSServiceConfig struct {
	CacheExpiry int
	Timeout     int
}

type jwksCacheEntry struct {
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

// JWKSService caches each provider's published signing keys in memory with a
// TTL. An unknown kid forces a refetch so provider key rotation is tolerated
// without a restart.
type JWKSService struct {
	Config  JWKSServiceConfig
	mutex   sync.Mutex
	entries map[string]*jwksCacheEntry
	client  *http.Client
}

func NewJWKSService(config JWKSServiceConfig) *JWKSService {
	return &JWKSService{
		Config:  config,
		entries: make(map[string]*jwksCacheEntry),
		client: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

func (j *JWKSService) GetKey(ctx context.Context, jwksURL string, kid string) (*rsa.PublicKey, error) {
	j.mutex.Lock()

	entry, exists := j.entries[jwksURL]
	if exists {
		fresh := time.Since(entry.fetchedAt) < time.Duration(j.Config.CacheExpiry)*time.Second
		if fresh {
			if key, ok := entry.keys[kid]; ok {
				j.mutex.Unlock()
				return key, nil
			}
		}
		// The fetch floor holds for stale entries too, otherwise a stale
		// cache turns every validation into a network round trip. A known
		// kid stays good until the provider rotates it away, so serve it
		// stale rather than fail.
		if time.Since(entry.lastAttempt) < minRefetchInterval {
			key, ok := entry.keys[kid]
			j.mutex.Unlock()
			if ok {
				return key, nil
			}
			return nil, fmt.Errorf("key %q not found in cached key set", kid)
		}
	}

	if exists {
		entry.lastAttempt = time.Now()
	} else {
		j.entries[jwksURL] = &jwksCacheEntry{lastAttempt: time.Now()}
	}
	j.mutex.Unlock()

	keys, err := j.fetchKeys(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	j.mutex.Lock()
	j.entries[jwksURL] = &jwksCacheEntry{
		keys:        keys,
		fetchedAt:   time.Now(),
		lastAttempt: time.Now(),
	}
	j.mutex.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in key set", kid)
	}

	return key, nil
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j *JWKSService) fetchKeys(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, err
	}

	res, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key set: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set endpoint returned status %d", res.StatusCode)
	}

	// Cap the body, a key set has no business being this large
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var response jwksResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(response.Keys))

	for _, key := range response.Keys {
		if key.Kid == "" || key.Kty != "RSA" {
			continue
		}
		publicKey, err := parseRSAKey(key.N, key.E)
		if err != nil {
			log.Warn().Err(err).Str("kid", key.Kid).Msg("Skipping unparsable key in key set")
			continue
		}
		keys[key.Kid] = publicKey
	}

	if len(keys) == 0 {
		return nil, errors.New("key set contained no usable keys")
	}

	return keys, nil
}

func parseRSAKey(modulus string, exponent string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil {
		return nil, err
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil {
		return nil, err
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	if e <= 1 {
		return nil, errors.New("invalid RSA exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
