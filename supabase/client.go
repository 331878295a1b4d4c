// Package supabase is an HTTP adapter for the managed backend: the auth
// admin API and the REST tables used by the functions.
//
// Usage:
//
//	sb := supabase.NewClient(cfg.SupabaseURL, cfg.AnonKey, cfg.ServiceRoleKey)
//	client, err := milow.NewClient(milow.Config{},
//	    milow.WithTokenVerifier(sb),
//	)
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	milow "github.com/milow-app/milow-functions"
)

const maxErrorBody = 4 << 10

// ErrUnauthorized is returned when the backend rejects a caller token.
var ErrUnauthorized = errors.New("supabase: unauthorized")

// APIError reports a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps 404 responses to milow.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return milow.ErrNotFound
	}
	return nil
}

// Client talks to one backend project.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the project at baseURL. The anon key is
// used to resolve caller tokens; the service role key for admin calls.
func NewClient(baseURL, anonKey, serviceRoleKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		anonKey:        anonKey,
		serviceRoleKey: serviceRoleKey,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the project URL.
func (c *Client) BaseURL() string { return c.baseURL }

// RedirectURL returns the invitation callback URL: the project URL with the
// hosted domain suffix removed, followed by /auth/callback.
func (c *Client) RedirectURL() string {
	return strings.Replace(c.baseURL, ".supabase.co", "", 1) + "/auth/callback"
}

// request describes one backend call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	bearer string // defaults to the service role key
	apiKey string // defaults to the service role key
	prefer string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("supabase: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("supabase: failed to create request: %w", err)
	}

	apiKey, bearer := r.apiKey, r.bearer
	if apiKey == "" {
		apiKey = c.serviceRoleKey
	}
	if bearer == "" {
		bearer = c.serviceRoleKey
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &milow.TransportError{Endpoint: c.baseURL + r.path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data), Message: errorMessage(data)}
		c.logger.DebugContext(ctx, "backend request failed",
			"method", r.method,
			"path", r.path,
			"status", resp.StatusCode,
		)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("supabase: failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the human-readable message from an auth or REST
// error body.
func errorMessage(data []byte) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(data, &e) != nil {
		return ""
	}
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Message != "":
		return e.Message
	default:
		return e.ErrorDescription
	}
}

func eq(v string) string { return "eq." + v }
