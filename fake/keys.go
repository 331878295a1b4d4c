package fake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	milow "github.com/milow-app/milow-functions"
)

// NewServiceAccount generates a throwaway service account with a fresh
// 2048-bit RSA key encoded as PKCS8 PEM.
func NewServiceAccount(keyID string) (*milow.ServiceAccountCredentials, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("milow/fake: generate key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("milow/fake: marshal key: %w", err)
	}
	creds := &milow.ServiceAccountCredentials{
		ClientEmail:  "functions@milow-test.iam.gserviceaccount.com",
		PrivateKey:   string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		PrivateKeyID: keyID,
		ProjectID:    "milow-test",
	}
	return creds, key, nil
}

// ServiceAccountJSON encodes creds the way Google key files are stored.
func ServiceAccountJSON(creds *milow.ServiceAccountCredentials) string {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		*milow.ServiceAccountCredentials
	}{"service_account", creds})
	return string(data)
}
