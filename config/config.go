// Package config loads service settings from an optional YAML file and the
// environment.
//
// Every key can be overridden with a MILOW_ prefixed variable (server.addr
// becomes MILOW_SERVER_ADDR). The variable names used by the hosted
// functions are bound as well, so an existing deployment environment works
// unchanged:
//
//	SUPABASE_URL, SUPABASE_ANON_KEY, SUPABASE_SERVICE_ROLE_KEY,
//	GOOGLE_SERVICE_ACCOUNT_KEY, FIREBASE_SERVICE_ACCOUNT
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/secret"
	"github.com/spf13/viper"
)

// Verifier modes for caller tokens.
const (
	VerifierRemote = "remote" // ask the auth service for the user
	VerifierJWKS   = "jwks"   // verify signatures locally
)

// Config is the service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Google   GoogleConfig   `mapstructure:"google"`
	Push     PushConfig     `mapstructure:"push"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Audit    AuditConfig    `mapstructure:"audit"`

	v *viper.Viper
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	AnonKey        string `mapstructure:"anon_key"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	// Verifier is "remote" or "jwks".
	Verifier string `mapstructure:"verifier"`
	// JWKSURL defaults to the project's well-known JWKS endpoint.
	JWKSURL  string `mapstructure:"jwks_url"`
	Audience string `mapstructure:"audience"`
}

type GoogleConfig struct {
	PackageName      string `mapstructure:"package_name"`
	TokenURL         string `mapstructure:"token_url"`
	IntegrityBaseURL string `mapstructure:"integrity_base_url"`
	// TokenCache reuses Play Integrity access tokens until shortly before
	// they expire. Off by default: every verification signs a new assertion.
	TokenCache bool `mapstructure:"token_cache"`
}

type PushConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// Secret keys as stored in viper.
const (
	keyGoogleServiceAccount   = "google.service_account_key"
	keyFirebaseServiceAccount = "google.firebase_service_account"
)

// legacyEnv maps keys to the environment names used by the hosted functions.
var legacyEnv = map[string]string{
	"supabase.url":              "SUPABASE_URL",
	"supabase.anon_key":         "SUPABASE_ANON_KEY",
	"supabase.service_role_key": "SUPABASE_SERVICE_ROLE_KEY",
	keyGoogleServiceAccount:     secret.GoogleServiceAccountKey,
	keyFirebaseServiceAccount:   secret.FirebaseServiceAccount,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.service_role_key", "")
	v.SetDefault("supabase.verifier", VerifierRemote)
	v.SetDefault("supabase.jwks_url", "")
	v.SetDefault("supabase.audience", "authenticated")

	v.SetDefault("google.package_name", milow.DefaultPackageName)
	v.SetDefault("google.token_url", "")
	v.SetDefault("google.integrity_base_url", "")
	v.SetDefault("google.token_cache", false)

	v.SetDefault("push.base_url", "")
	v.SetDefault("push.max_concurrency", 16)

	v.SetDefault("webhook.secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 256)
}

// Load reads the YAML file at path, if given, and applies environment
// overrides. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MILOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "MILOW_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	c := &Config{v: v}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if c.Supabase.JWKSURL == "" && c.Supabase.URL != "" {
		c.Supabase.JWKSURL = strings.TrimRight(c.Supabase.URL, "/") + "/auth/v1/.well-known/jwks.json"
	}
	return c, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("supabase.url is required"))
	}
	if c.Supabase.ServiceRoleKey == "" {
		errs = append(errs, errors.New("supabase.service_role_key is required"))
	}
	switch c.Supabase.Verifier {
	case VerifierRemote:
		if c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("supabase.anon_key is required for the remote verifier"))
		}
	case VerifierJWKS:
	default:
		errs = append(errs, fmt.Errorf("supabase.verifier must be %q or %q, got %q", VerifierRemote, VerifierJWKS, c.Supabase.Verifier))
	}
	if c.Push.MaxConcurrency < 0 {
		errs = append(errs, errors.New("push.max_concurrency must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Secrets returns a milow.ConfigProvider backed by this configuration.
// Values are read at lookup time, so rotated environment secrets are picked
// up without a restart.
func (c *Config) Secrets() *Provider {
	return &Provider{v: c.v}
}

// Provider resolves secrets by their well-known names (for example
// GOOGLE_SERVICE_ACCOUNT_KEY) through viper.
type Provider struct {
	v *viper.Viper
}

var secretKeys = map[string]string{
	secret.GoogleServiceAccountKey: keyGoogleServiceAccount,
	secret.FirebaseServiceAccount:  keyFirebaseServiceAccount,
}

// Lookup implements milow.ConfigProvider.
func (p *Provider) Lookup(key string) (string, bool) {
	if p == nil || p.v == nil {
		return "", false
	}
	k, ok := secretKeys[key]
	if !ok {
		k = strings.ToLower(key)
	}
	if !p.v.IsSet(k) {
		return "", false
	}
	return p.v.GetString(k), true
}

var _ milow.ConfigProvider = (*Provider)(nil)
