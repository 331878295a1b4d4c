package oauth2

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/assertion"
	"github.com/milow-app/milow-functions/metrics"
	"github.com/milow-app/milow-functions/secret"
)

// ServiceAccountSource mints a fresh access token on every call: it reloads
// the credentials, signs a new assertion and exchanges it.
type ServiceAccountSource struct {
	provider  milow.ConfigProvider
	secretKey string
	scope     string
	exchanger *Exchanger
}

// NewServiceAccountSource returns a TokenSource for the service account
// stored under secretKey, requesting scope.
func NewServiceAccountSource(p milow.ConfigProvider, secretKey, scope string, e *Exchanger) *ServiceAccountSource {
	if e == nil {
		e = NewExchanger()
	}
	return &ServiceAccountSource{
		provider:  p,
		secretKey: secretKey,
		scope:     scope,
		exchanger: e,
	}
}

// Token implements milow.TokenSource. Configuration and signing failures
// are returned before any network call is made.
func (s *ServiceAccountSource) Token(ctx context.Context) (*milow.AccessToken, error) {
	creds, err := secret.Load(s.provider, s.secretKey)
	if err != nil {
		return nil, err
	}
	signed, err := assertion.Sign(creds, s.exchanger.TokenURL(), s.scope, s.exchanger.now())
	if err != nil {
		return nil, err
	}
	return s.exchanger.Exchange(ctx, signed)
}

// DefaultRefreshBuffer is how long before expiry a cached token is replaced.
const DefaultRefreshBuffer = 5 * time.Minute

// CachedSource wraps a TokenSource and reuses its token until shortly before
// it expires. Concurrent refreshes are collapsed into one upstream call.
type CachedSource struct {
	base          milow.TokenSource
	refreshBuffer time.Duration
	metrics       *metrics.Metrics
	now           func() time.Time

	mu    sync.RWMutex
	token *milow.AccessToken
	group singleflight.Group
}

// CacheOption configures a CachedSource.
type CacheOption func(*CachedSource)

// WithRefreshBuffer sets how long before expiry the token is refreshed.
func WithRefreshBuffer(d time.Duration) CacheOption {
	return func(c *CachedSource) { c.refreshBuffer = d }
}

// WithCacheMetrics records hits and misses under cache_type "google_token".
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CachedSource) { c.metrics = m }
}

// WithCacheClock sets the time source.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachedSource) { c.now = now }
}

// NewCachedSource wraps base.
func NewCachedSource(base milow.TokenSource, opts ...CacheOption) *CachedSource {
	c := &CachedSource{
		base:          base,
		refreshBuffer: DefaultRefreshBuffer,
		metrics:       metrics.New(false),
		now:           time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token implements milow.TokenSource. The refresh runs without the
// caller's cancellation; ctx values still reach the base source.
func (c *CachedSource) Token(ctx context.Context) (*milow.AccessToken, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()

	if c.valid(tok) {
		c.metrics.RecordCacheHit("google_token")
		return tok, nil
	}
	c.metrics.RecordCacheMiss("google_token")

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		// Another caller may have refreshed while we waited.
		c.mu.RLock()
		cur := c.token
		c.mu.RUnlock()
		if c.valid(cur) {
			return cur, nil
		}

		// Detached so one caller's cancellation does not fail the others
		// waiting on this refresh.
		fresh, err := c.base.Token(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*milow.AccessToken), nil
}

// Invalidate drops the cached token.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func (c *CachedSource) valid(tok *milow.AccessToken) bool {
	if tok == nil {
		return false
	}
	return c.now().Add(c.refreshBuffer).Before(tok.ExpiresAt)
}
