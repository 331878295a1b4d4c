//go:build integration

package oauth2_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/milow-app/milow-functions/oauth2"
	"github.com/milow-app/milow-functions/secret"
)

// Run with: go test -tags=integration ./oauth2/
//
// Requires GOOGLE_SERVICE_ACCOUNT_KEY to hold a real service account key
// with access to the Play Integrity API.
func TestServiceAccountSource_Google(t *testing.T) {
	if os.Getenv(secret.GoogleServiceAccountKey) == "" {
		t.Skip("Skipping integration test (GOOGLE_SERVICE_ACCOUNT_KEY not set)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	src := oauth2.NewServiceAccountSource(secret.EnvProvider{}, secret.GoogleServiceAccountKey,
		oauth2.ScopePlayIntegrity, oauth2.NewExchanger())

	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if tok.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
	if tok.ExpiresAt.Before(time.Now()) {
		t.Error("ExpiresAt should be in the future")
	}
}
