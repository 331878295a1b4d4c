// Package secret loads Google service account credentials through an
// injected milow.ConfigProvider.
package secret

import (
	"encoding/json"
	"os"
	"strings"

	milow "github.com/milow-app/milow-functions"
)

// Well-known secret names.
const (
	GoogleServiceAccountKey = "GOOGLE_SERVICE_ACCOUNT_KEY"
	FirebaseServiceAccount  = "FIREBASE_SERVICE_ACCOUNT"
)

// Load reads the JSON service account key stored under key and parses it.
// Absent, unparsable or incomplete secrets yield a *milow.ConfigurationError.
func Load(p milow.ConfigProvider, key string) (*milow.ServiceAccountCredentials, error) {
	if p == nil {
		return nil, &milow.ConfigurationError{Key: key, Reason: "no config provider"}
	}
	raw, ok := p.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, &milow.ConfigurationError{Key: key, Reason: "secret is not set"}
	}
	return Parse(key, []byte(raw))
}

// Parse decodes a service account key document. key is only used in errors.
func Parse(key string, data []byte) (*milow.ServiceAccountCredentials, error) {
	var creds milow.ServiceAccountCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, &milow.ConfigurationError{Key: key, Reason: "secret is not valid JSON", Err: err}
	}
	if creds.ClientEmail == "" {
		return nil, &milow.ConfigurationError{Key: key, Reason: "missing client_email"}
	}
	if creds.PrivateKey == "" {
		return nil, &milow.ConfigurationError{Key: key, Reason: "missing private_key"}
	}
	return &creds, nil
}

// EnvProvider reads values from the process environment.
type EnvProvider struct{}

// Lookup implements milow.ConfigProvider.
func (EnvProvider) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// MapProvider serves values from a fixed map. Useful in tests.
type MapProvider map[string]string

// Lookup implements milow.ConfigProvider.
func (m MapProvider) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

var (
	_ milow.ConfigProvider = EnvProvider{}
	_ milow.ConfigProvider = MapProvider(nil)
)
