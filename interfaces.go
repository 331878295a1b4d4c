package milow

import "context"

// ConfigProvider resolves named configuration values such as service account
// secrets. Implementations: secret.EnvProvider, secret.MapProvider, config.Provider.
type ConfigProvider interface {
	// Lookup returns the value for key and whether it was set.
	Lookup(key string) (string, bool)
}

// TokenVerifier verifies caller access tokens issued by the backend.
// Implementations: jwks/ (local JWKS verification), supabase/ (remote user lookup), fake/.
type TokenVerifier interface {
	// Verify validates the token and returns the extracted claims.
	Verify(ctx context.Context, token string) (*Claims, error)
}

// TokenSource yields Google OAuth2 access tokens.
// Implementations: oauth2.ServiceAccountSource, oauth2.CachedSource, fake/.
type TokenSource interface {
	// Token returns an access token suitable for an Authorization: Bearer header.
	Token(ctx context.Context) (*AccessToken, error)
}

// IntegrityDecoder decodes a Play Integrity token into its verdict.
type IntegrityDecoder interface {
	// Decode asks the attestation provider to decode integrityToken for packageName.
	Decode(ctx context.Context, packageName, integrityToken string) (*IntegrityVerdict, error)
}

// Messenger delivers a push notification to a single device.
type Messenger interface {
	// Send delivers msg to the device identified by deviceToken.
	Send(ctx context.Context, deviceToken string, msg PushMessage) error
}
