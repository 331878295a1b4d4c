// Package oauth2 exchanges signed service-account assertions for Google
// access tokens using the JWT bearer grant (RFC 7523).
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/metrics"
)

// Google endpoints and scopes.
const (
	DefaultTokenURL        = "https://oauth2.googleapis.com/token"
	GrantTypeJWT           = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	ScopePlayIntegrity     = "https://www.googleapis.com/auth/playintegrity"
	ScopeFirebaseMessaging = "https://www.googleapis.com/auth/firebase.messaging"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 4 << 10

// Exchanger posts assertions to a token endpoint.
type Exchanger struct {
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures the Exchanger.
type Option func(*Exchanger)

// WithHTTPClient sets a custom HTTP client for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exchanger) { e.httpClient = c }
}

// WithTokenURL overrides the token endpoint.
func WithTokenURL(u string) Option {
	return func(e *Exchanger) { e.tokenURL = u }
}

// WithLogger sets the logger used for upstream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exchanger) { e.logger = l }
}

// WithMetrics records exchange outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchanger) { e.metrics = m }
}

// WithClock sets the time source. Tests use it to pin issued-at.
func WithClock(now func() time.Time) Option {
	return func(e *Exchanger) { e.now = now }
}

// NewExchanger creates an exchanger for the Google token endpoint.
func NewExchanger(opts ...Option) *Exchanger {
	e := &Exchanger{
		tokenURL:   DefaultTokenURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		metrics:    metrics.New(false),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// TokenURL returns the endpoint assertions are posted to. It is also the
// audience of the assertions.
func (e *Exchanger) TokenURL() string { return e.tokenURL }

// tokenResponse is the raw JSON response from the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int32  `json:"expires_in"`
}

// Exchange trades a signed assertion for an access token.
// Network failures yield *milow.TransportError; non-2xx responses yield
// *milow.TokenExchangeError carrying the response body. Nothing is retried.
func (e *Exchanger) Exchange(ctx context.Context, assertion string) (*milow.AccessToken, error) {
	start := time.Now()
	tok, err := e.exchange(ctx, assertion)
	e.metrics.RecordTokenExchange(resultLabel(err), time.Since(start).Seconds())
	return tok, err
}

func (e *Exchanger) exchange(ctx context.Context, assertion string) (*milow.AccessToken, error) {
	form := url.Values{
		"grant_type": {GrantTypeJWT},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &milow.TransportError{Endpoint: e.tokenURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &milow.TransportError{Endpoint: e.tokenURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		e.logger.ErrorContext(ctx, "token exchange failed",
			"status", resp.StatusCode,
			"body", text,
		)
		return nil, &milow.TokenExchangeError{StatusCode: resp.StatusCode, Body: text}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("oauth2: failed to decode response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("oauth2: empty access_token in response")
	}
	if tokenResp.TokenType == "" {
		tokenResp.TokenType = "Bearer"
	}

	return &milow.AccessToken{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		ExpiresIn:   tokenResp.ExpiresIn,
		ExpiresAt:   e.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
