// Package authz decides whether a caller's profile role permits an
// administrative action.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	milow "github.com/milow-app/milow-functions"
)

// Profile roles.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RolePending    = "pending"
)

var (
	// ErrUnauthenticated is returned when the context carries no caller.
	ErrUnauthenticated = errors.New("authz: no authenticated user")
	// ErrProfileNotFound is returned when the caller has no profile row.
	ErrProfileNotFound = errors.New("authz: profile not found")
	// ErrForbidden is returned when the caller's role is not permitted.
	ErrForbidden = errors.New("authz: forbidden")
)

// Backend loads profiles.
type Backend interface {
	GetProfile(ctx context.Context, id string) (*milow.Profile, error)
}

type cacheEntry struct {
	profile *milow.Profile
	expires time.Time
}

// Authorizer checks caller roles, optionally caching profiles.
type Authorizer struct {
	backend  Backend
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option configures the Authorizer.
type Option func(*Authorizer)

// WithCacheTTL caches caller profiles for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *Authorizer) { a.cacheTTL = ttl }
}

// New creates an Authorizer.
func New(backend Backend, opts ...Option) *Authorizer {
	a := &Authorizer{
		backend: backend,
		cache:   make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Require returns the caller's profile if its role is one of roles.
// The caller is taken from milow.UserIDFromContext.
func (a *Authorizer) Require(ctx context.Context, roles ...string) (*milow.Profile, error) {
	userID := milow.UserIDFromContext(ctx)
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	p, err := a.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(roles, p.Role) {
		return nil, fmt.Errorf("%w: role %q", ErrForbidden, p.Role)
	}
	return p, nil
}

// Check reports whether the caller holds one of roles.
func (a *Authorizer) Check(ctx context.Context, roles ...string) (bool, error) {
	_, err := a.Require(ctx, roles...)
	if errors.Is(err, ErrForbidden) {
		return false, nil
	}
	return err == nil, err
}

// ClearCache drops all cached profiles.
func (a *Authorizer) ClearCache() {
	a.mu.Lock()
	a.cache = make(map[string]cacheEntry)
	a.mu.Unlock()
}

func (a *Authorizer) profile(ctx context.Context, userID string) (*milow.Profile, error) {
	if a.cacheTTL > 0 {
		a.mu.RLock()
		e, ok := a.cache[userID]
		a.mu.RUnlock()
		if ok && time.Now().Before(e.expires) {
			return e.profile, nil
		}
	}

	p, err := a.backend.GetProfile(ctx, userID)
	if errors.Is(err, milow.ErrNotFound) || (err == nil && p == nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("authz: %w", err)
	}

	if a.cacheTTL > 0 {
		a.mu.Lock()
		a.cache[userID] = cacheEntry{profile: p, expires: time.Now().Add(a.cacheTTL)}
		a.mu.Unlock()
	}
	return p, nil
}
