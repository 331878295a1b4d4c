// Package ginmw provides Gin HTTP middleware for the function host.
//
// Auth uses the client's TokenVerifier only, so the same middleware works
// with local JWKS verification, remote user lookup or the in-memory fake.
package ginmw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/metrics"
)

// Context keys for storing caller data in gin.Context.
const (
	KeyUserID    = "milow_user_id"
	KeyEmail     = "milow_email"
	KeyClaims    = "milow_claims"
	KeyRequestID = "milow_request_id"
)

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
	metrics       *metrics.Metrics
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// WithMetrics counts rejected requests by reason.
func WithMetrics(m *metrics.Metrics) AuthOption {
	return func(cfg *authConfig) { cfg.metrics = m }
}

// Auth returns Gin middleware that verifies bearer tokens via client.Verifier().
// On success the caller's ID, claims and raw token are stored in both the Gin
// context and the request context (milow.UserIDFromContext and friends).
// Responds with 401 if the token is missing or invalid. Preflight requests
// pass through untouched.
func Auth(client *milow.Client, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool), metrics: metrics.New(false)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			cfg.metrics.RecordAuthFailure("missing_token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		verifier := client.Verifier()
		if verifier == nil {
			cfg.metrics.RecordAuthFailure("no_verifier")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token verifier not configured"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil || claims.Subject == "" {
			cfg.metrics.RecordAuthFailure("invalid_token")
			client.Logger().DebugContext(c.Request.Context(), "token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(KeyClaims, claims)
		c.Set(KeyUserID, claims.Subject)
		if claims.Email != "" {
			c.Set(KeyEmail, claims.Email)
		}

		ctx := milow.WithUserID(c.Request.Context(), claims.Subject)
		ctx = milow.WithClaims(ctx, claims)
		ctx = milow.WithAccessToken(ctx, tokenStr)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// --- Context helpers ---

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(KeyUserID)
}

// GetEmail returns the user's email from the Gin context.
func GetEmail(c *gin.Context) string {
	return c.GetString(KeyEmail)
}

// GetClaims returns the full claims from the Gin context.
func GetClaims(c *gin.Context) *milow.Claims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*milow.Claims)
	return cl
}

// GetRequestID returns the request ID set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(KeyRequestID)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
