package oauth2

import (
	"net/http"

	xoauth2 "golang.org/x/oauth2"

	milow "github.com/milow-app/milow-functions"
)

// NewHTTPClient returns a client that sends tok as the bearer credential on
// every request, using base's transport and timeout. A nil base means
// http.DefaultClient. Google API services take it through
// option.WithHTTPClient, so no ambient credentials are looked up.
func NewHTTPClient(base *http.Client, tok *milow.AccessToken) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	// Expiry is left unset: the caller's TokenSource already decided the
	// token is fresh enough for this request.
	src := xoauth2.StaticTokenSource(&xoauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	})
	return &http.Client{
		Transport: &xoauth2.Transport{Source: src, Base: rt},
		Timeout:   base.Timeout,
	}
}
