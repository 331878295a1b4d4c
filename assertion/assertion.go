// Package assertion builds signed JWT bearer assertions for the OAuth2
// jwt-bearer grant (RFC 7523) used by Google service accounts.
//
// Encoding and RS256 signing go through golang-jwt. The signing step sits
// behind the Signer interface so tests can substitute a deterministic fake.
package assertion

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	milow "github.com/milow-app/milow-functions"
)

// Lifetime is the fixed validity window of an assertion.
const Lifetime = time.Hour

// Default header values.
const (
	AlgorithmRS256 = "RS256"
	TypeJWT        = "JWT"
)

// Signer computes a signature over the signing input.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// Header is the JOSE header of an assertion.
type Header struct {
	Algorithm string
	Type      string
	KeyID     string // omitted from the encoded header when empty
}

// Claims is the claim set of an assertion.
type Claims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub,omitempty"`
	Audience string `json:"aud"`
	Scope    string `json:"scope"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

var _ jwt.Claims = Claims{}

// NewClaims returns the claim set for creds at now.
// iss and sub are the service account email; exp is iat plus one hour.
func NewClaims(creds *milow.ServiceAccountCredentials, audience, scope string, now time.Time) Claims {
	iat := now.Unix()
	return Claims{
		Issuer:   creds.ClientEmail,
		Subject:  creds.ClientEmail,
		Audience: audience,
		Scope:    scope,
		IssuedAt: iat,
		Expiry:   iat + int64(Lifetime/time.Second),
	}
}

// NewHeader returns an RS256 header carrying keyID when it is set.
func NewHeader(keyID string) Header {
	return Header{Algorithm: AlgorithmRS256, Type: TypeJWT, KeyID: keyID}
}

// Build encodes h and c, signs "<header>.<claims>" with s and returns the
// compact serialization. Segments are base64url without padding.
func Build(h Header, c Claims, s Signer) (string, error) {
	if s == nil {
		return "", &milow.SigningError{Reason: "no signer"}
	}
	if h.Algorithm == "" {
		h.Algorithm = AlgorithmRS256
	}
	if h.Type == "" {
		h.Type = TypeJWT
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	token.Header = map[string]interface{}{
		"alg": h.Algorithm,
		"typ": h.Type,
	}
	if h.KeyID != "" {
		token.Header["kid"] = h.KeyID
	}

	signingInput, err := token.SigningString()
	if err != nil {
		return "", &milow.SigningError{Reason: "encode segments", Err: err}
	}

	sig, err := s.Sign([]byte(signingInput))
	if err != nil {
		return "", &milow.SigningError{Reason: "sign assertion", Err: err}
	}

	return signingInput + "." + token.EncodeSegment(sig), nil
}

// Sign builds an RS256 assertion for creds using its private key.
// The key is imported before anything else, so a malformed key fails fast.
func Sign(creds *milow.ServiceAccountCredentials, audience, scope string, now time.Time) (string, error) {
	signer, err := NewRSASigner(creds.PrivateKey)
	if err != nil {
		return "", err
	}
	return Build(NewHeader(creds.PrivateKeyID), NewClaims(creds, audience, scope, now), signer)
}

// jwt.Claims implementation, used by golang-jwt when encoding.

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c Claims) GetIssuer() (string, error) { return c.Issuer, nil }

func (c Claims) GetSubject() (string, error) { return c.Subject, nil }

func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}
