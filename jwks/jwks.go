// Package jwks provides a TokenVerifier for access tokens issued by the
// backend's auth service.
//
// It fetches the project's signing keys from its JWKS endpoint (RFC 7517),
// caches them locally and verifies RS256/ES256 signatures without calling
// the auth service per request.
//
// Usage:
//
//	v := jwks.NewVerifier(cfg.SupabaseURL+"/auth/v1/.well-known/jwks.json",
//	    jwks.WithAudience("authenticated"),
//	)
package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/metrics"
	"golang.org/x/sync/singleflight"
)

const maxJWKSBody = 1 << 20

// Verifier implements milow.TokenVerifier using JWKS public keys.
type Verifier struct {
	jwksURL         string
	httpClient      *http.Client
	refreshInterval time.Duration
	audience        string
	logger          *slog.Logger
	metrics         *metrics.Metrics

	group singleflight.Group

	mu        sync.RWMutex
	keys      map[string]any // kid → *rsa.PublicKey or *ecdsa.PublicKey
	lastFetch time.Time
}

var _ milow.TokenVerifier = (*Verifier)(nil)

// Option configures the Verifier.
type Option func(*Verifier)

// WithHTTPClient sets a custom HTTP client for fetching JWKS.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithRefreshInterval sets how often cached keys are refreshed.
// Default: 1 hour.
func WithRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.refreshInterval = d }
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = aud }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithMetrics records key cache hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier creates a new JWKS-based token verifier.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:         jwksURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		refreshInterval: 1 * time.Hour,
		logger:          slog.Default(),
		metrics:         metrics.New(false),
		keys:            make(map[string]any),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify validates a JWT and returns the extracted claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*milow.Claims, error) {
	popts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
	}
	if v.audience != "" {
		popts = append(popts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.NewParser(popts...).Parse(tokenString, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.getKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("jwks: invalid token claims")
	}
	return toClaims(mapClaims), nil
}

// getKey returns the public key for kid, fetching or refreshing as needed.
func (v *Verifier) getKey(ctx context.Context, kid string) (any, error) {
	v.mu.RLock()
	key, found := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.refreshInterval
	v.mu.RUnlock()

	if found && !stale {
		v.metrics.RecordCacheHit("jwks")
		return key, nil
	}
	v.metrics.RecordCacheMiss("jwks")

	// Concurrent misses share one fetch.
	_, err, _ := v.group.Do("refresh", func() (any, error) {
		return nil, v.refresh(ctx)
	})
	if err != nil {
		if found {
			v.logger.WarnContext(ctx, "jwks refresh failed, using cached key", "kid", kid, "error", err)
			return key, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	if kid == "" && len(v.keys) == 1 {
		for _, k := range v.keys {
			return k, nil
		}
	}
	return nil, fmt.Errorf("jwks: key not found for kid %q", kid)
}

// refresh fetches the JWKS and replaces the cache.
func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("jwks: create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return &milow.TransportError{Endpoint: v.jwksURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return fmt.Errorf("jwks: read: %w", err)
	}
	set, err := jwk.Parse(data)
	if err != nil {
		return fmt.Errorf("jwks: parse: %w", err)
	}

	keys := make(map[string]any, set.Len())
	for i := range set.Len() {
		k, ok := set.Key(i)
		if !ok {
			continue
		}
		if use, ok := k.KeyUsage(); ok && use != "sig" {
			continue
		}
		var raw any
		if err := jwk.Export(k, &raw); err != nil {
			v.logger.DebugContext(ctx, "skipping malformed jwk", "error", err)
			continue
		}
		switch raw.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
		default:
			continue
		}
		kid, _ := k.KeyID()
		keys[kid] = raw
	}

	if len(keys) == 0 {
		return errors.New("jwks: no usable signing keys found")
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()

	v.logger.DebugContext(ctx, "jwks refreshed", "keys", len(keys))
	return nil
}

var standardClaims = map[string]bool{
	"sub": true, "email": true, "role": true,
	"iss": true, "exp": true, "iat": true,
	"aud": true, "nbf": true, "jti": true,
}

// toClaims converts jwt.MapClaims to milow.Claims. Non-standard claims such
// as user_metadata land in Extra.
func toClaims(m jwt.MapClaims) *milow.Claims {
	c := &milow.Claims{Extra: make(map[string]any)}

	c.Subject, _ = m["sub"].(string)
	c.Email, _ = m["email"].(string)
	c.Role, _ = m["role"].(string)
	c.Issuer, _ = m["iss"].(string)
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}

	for k, v := range m {
		if !standardClaims[k] {
			c.Extra[k] = v
		}
	}
	return c
}
