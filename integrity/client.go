// Package integrity decodes Google Play Integrity tokens and applies the
// acceptance policy to the resulting verdict.
package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	play "google.golang.org/api/playintegrity/v1"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/oauth2"
)

// DefaultBaseURL is the Play Integrity API root.
const DefaultBaseURL = "https://playintegrity.googleapis.com/"

const maxErrorBody = 4 << 10

// Client calls the decodeIntegrityToken endpoint.
type Client struct {
	baseURL    string
	tokens     milow.TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = endpoint(u) }
}

// WithHTTPClient sets the HTTP client whose transport carries the calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger sets the logger for upstream diagnostics.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a decoder authenticated by tokens. The token source
// must request the playintegrity scope.
func NewClient(tokens milow.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Decode implements milow.IntegrityDecoder. A response without
// tokenPayloadExternal yields an empty verdict, which fails validation.
func (c *Client) Decode(ctx context.Context, packageName, integrityToken string) (*milow.IntegrityVerdict, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := play.NewService(ctx,
		option.WithHTTPClient(oauth2.NewHTTPClient(c.httpClient, tok)),
		option.WithEndpoint(c.baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("integrity: failed to create service: %w", err)
	}

	resp, err := svc.V1.DecodeIntegrityToken(packageName,
		&play.DecodeIntegrityTokenRequest{IntegrityToken: integrityToken},
	).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			body := apiErr.Body
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			c.logger.ErrorContext(ctx, "integrity decode failed",
				"status", apiErr.Code,
				"body", body,
			)
			return nil, &milow.VerificationError{StatusCode: apiErr.Code, Body: body}
		}
		return nil, &milow.TransportError{Endpoint: c.baseURL, Err: err}
	}

	if resp.TokenPayloadExternal == nil {
		return &milow.IntegrityVerdict{}, nil
	}
	return toVerdict(resp.TokenPayloadExternal)
}

// toVerdict re-reads the payload in its wire form. The API types carry
// int64 fields as JSON strings, which is how the verdict keeps them.
func toVerdict(p *play.TokenPayloadExternal) (*milow.IntegrityVerdict, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("integrity: failed to encode payload: %w", err)
	}
	var v milow.IntegrityVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("integrity: failed to decode payload: %w", err)
	}
	return &v, nil
}

func endpoint(u string) string {
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

var _ milow.IntegrityDecoder = (*Client)(nil)
