// Package jwksverifier verifies realm tokens on the relying-party side using the
// realm's published JSON Web Key Set.
//
// Keys are cached by kid. A token whose kid is not cached triggers one coalesced
// refresh of the set, so a key rotation is picked up on first use and a removed key
// stops verifying after the next refresh.
package jwksverifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

var (
	ErrKidNotFound    = errors.New("kid not found in JWKS")
	ErrMissingKid     = errors.New("token header has no kid")
	ErrUnsupportedAlg = errors.New("unsupported algorithm")
	ErrInvalidToken   = errors.New("invalid token")
)

// Verifier is a thread-safe client that fetches, caches and verifies against a JWKS.
type Verifier struct {
	jwksURL    string
	httpClient *http.Client
	minRefresh time.Duration
	// fetchTimeout bounds a shared fetch, which outlives a cancelled caller.
	fetchTimeout time.Duration
	group        singleflight.Group

	mu        sync.RWMutex
	keys      map[string]jose.JSONWebKey
	etag      string
	lastFetch time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithMinRefreshInterval bounds how often an unknown kid may trigger a refetch.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.minRefresh = d }
}

// New creates a Verifier for the certs endpoint of one realm,
// e.g. https://idp.example.com/realms/acme/protocol/openid-connect/certs.
func New(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:      jwksURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		minRefresh:   5 * time.Second,
		fetchTimeout: 10 * time.Second,
		keys:         make(map[string]jose.JSONWebKey),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh fetches the JWKS. A 304 keeps the cached keys. Concurrent callers share one request,
// which is not cancelled when the caller that started it gives up; each caller still returns
// when its own ctx is done.
func (v *Verifier) Refresh(ctx context.Context) error {
	ch := v.group.DoChan("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.fetchTimeout)
		defer cancel()
		return nil, v.fetch(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Verifier) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	v.mu.RLock()
	if v.etag != "" {
		req.Header.Set("If-None-Match", v.etag)
	}
	v.mu.RUnlock()

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		v.mu.Lock()
		v.lastFetch = time.Now()
		v.mu.Unlock()
		return nil
	case http.StatusOK:
	default:
		return fmt.Errorf("failed to fetch JWKS: status code %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		switch jose.SignatureAlgorithm(key.Algorithm) {
		case jose.RS256, jose.ES256:
			keys[key.KeyID] = key
		}
	}

	v.mu.Lock()
	v.keys = keys
	v.etag = resp.Header.Get("ETag")
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}

func (v *Verifier) lookup(kid string) (jose.JSONWebKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok := v.keys[kid]
	return key, ok
}

func (v *Verifier) stale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastFetch.IsZero() || time.Since(v.lastFetch) >= v.minRefresh
}

// Verify checks the signature and standard claims of tokenString and decodes its claims into claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string, claims jwt.Claims) (*jwt.Token, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMissingKid
	}

	key, found := v.lookup(kid)
	if !found && v.stale() {
		if err := v.Refresh(ctx); err != nil {
			return nil, err
		}
		key, found = v.lookup(kid)
	}
	if !found {
		return nil, ErrKidNotFound
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key.Key, nil
	}, jwt.WithValidMethods([]string{key.Algorithm}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return token, nil
}
