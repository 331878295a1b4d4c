// Package httpapi exposes the functions over HTTP under /functions/v1/.
package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/integrity"
	"github.com/milow-app/milow-functions/metrics"
	"github.com/milow-app/milow-functions/middleware/ginmw"
	"github.com/milow-app/milow-functions/user"
	"github.com/milow-app/milow-functions/webhook"
)

// BasePath is the prefix of every function route.
const BasePath = "/functions/v1"

// Deps are the services behind the routes. A nil service leaves its routes
// unregistered.
type Deps struct {
	Client    *milow.Client
	Users     *user.Service
	Integrity *integrity.Service
	Releases  *webhook.Releases

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// Options tune the router.
type Options struct {
	// WebhookSecret, when set, must be presented as a bearer token by the
	// database webhooks.
	WebhookSecret string
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

type server struct {
	Deps
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the functions.
func NewRouter(d Deps, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &server{Deps: d, logger: opts.Logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginmw.RequestID())
	r.Use(ginmw.Logger(opts.Logger))
	r.Use(ginmw.CORS(ginmw.CORSOptions()))

	r.GET("/healthz", s.health)
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	fn := r.Group(BasePath)
	fn.OPTIONS("/*name", preflight)

	if d.Users != nil {
		authed := fn.Group("", ginmw.Auth(d.Client, ginmw.WithMetrics(opts.Metrics)))
		authed.POST("/invite-user", s.inviteUser)
		authed.POST("/delete-user", s.deleteUser)
		authed.POST("/reset-password", s.resetPassword)
	}

	if d.Integrity != nil {
		fn.POST("/verify-integrity", s.verifyIntegrity)
	}

	hooks := fn.Group("", webhookAuth(opts.WebhookSecret))
	if d.Releases != nil {
		hooks.POST("/notify_new_version", s.notifyNewVersion)
	}
	hooks.POST("/on-load-status-change", s.loadStatusChange)

	return r
}

func preflight(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *server) health(c *gin.Context) {
	if s.Client == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := s.Client.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhookAuth checks the shared webhook secret. An empty secret disables
// the check.
func webhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("Authorization")
		want := "Bearer " + secret
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
