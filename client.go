// Package milow provides the server-side building blocks of the Milow driver
// app backend: Google service-account token acquisition, Play Integrity
// verdict validation, push fan-out and user administration on top of the
// managed auth/database backend.
//
// The package defines interfaces for caller token verification, Google access
// tokens, integrity decoding and push delivery. Concrete implementations are
// injected via Option functions.
//
// Example usage:
//
//	client, err := milow.NewClient(
//	    milow.Config{PackageName: "maninder.co.in.milow"},
//	    milow.WithTokenVerifier(verifier),
//	    milow.WithIntegrityDecoder(decoder),
//	)
package milow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Client bundles the configured services.
// Service implementations are injected via Option functions.
type Client struct {
	config    Config
	logger    *slog.Logger
	verifier  TokenVerifier
	integrity IntegrityDecoder
	messenger Messenger
	google    TokenSource
}

// Config holds service-wide settings.
type Config struct {
	// PackageName is the Android package name integrity verdicts must match.
	PackageName string

	// BackendURL is the base URL of the managed auth/database backend.
	BackendURL string
}

// DefaultPackageName is the package name of the driver app.
const DefaultPackageName = "maninder.co.in.milow"

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokenVerifier sets the caller token verification implementation.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithIntegrityDecoder sets the Play Integrity decoder.
func WithIntegrityDecoder(d IntegrityDecoder) Option {
	return func(c *Client) { c.integrity = d }
}

// WithMessenger sets the push notification sender.
func WithMessenger(m Messenger) Option {
	return func(c *Client) { c.messenger = m }
}

// WithGoogleTokenSource sets the source of Google access tokens.
func WithGoogleTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.google = ts }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.PackageName == "" {
		cfg.PackageName = DefaultPackageName
	}

	c := &Client{config: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		return nil, fmt.Errorf("milow: logger cannot be nil")
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Verifier returns the token verifier, or nil if not configured.
func (c *Client) Verifier() TokenVerifier { return c.verifier }

// Integrity returns the integrity decoder, or nil if not configured.
func (c *Client) Integrity() IntegrityDecoder { return c.integrity }

// Messenger returns the push sender, or nil if not configured.
func (c *Client) Messenger() Messenger { return c.messenger }

// GoogleTokenSource returns the Google token source, or nil if not configured.
func (c *Client) GoogleTokenSource() TokenSource { return c.google }

// HealthCheck reports whether at least one service is configured.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.verifier == nil && c.integrity == nil && c.messenger == nil && c.google == nil {
		return fmt.Errorf("milow: no services configured")
	}
	return nil
}

// Close releases all resources held by the client.
// Any injected service that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.verifier, c.integrity, c.messenger, c.google,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
