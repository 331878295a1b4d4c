package assertion

import (
	"crypto/rsa"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	milow "github.com/milow-app/milow-functions"
)

// RSASigner signs with RSASSA-PKCS1-v1_5 over SHA-256 (RS256).
type RSASigner struct {
	key *rsa.PrivateKey
}

var _ Signer = (*RSASigner)(nil)

// NewRSASigner imports a PEM encoded RSA private key (PKCS8 or PKCS1).
// Keys whose newlines were escaped as a literal "\n" are accepted.
func NewRSASigner(pemKey string) (*RSASigner, error) {
	pemKey = strings.ReplaceAll(pemKey, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, &milow.SigningError{Reason: "import private key", Err: err}
	}
	return &RSASigner{key: key}, nil
}

// NewRSASignerFromKey wraps an already parsed key.
func NewRSASignerFromKey(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

// Sign implements Signer.
func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	sig, err := jwt.SigningMethodRS256.Sign(string(data), s.key)
	if err != nil {
		return nil, &milow.SigningError{Reason: "rs256", Err: err}
	}
	return sig, nil
}

// Public returns the public half of the signing key.
func (s *RSASigner) Public() *rsa.PublicKey { return &s.key.PublicKey }
