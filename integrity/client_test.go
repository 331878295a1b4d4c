package integrity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/fake"
	"github.com/milow-app/milow-functions/integrity"
)

func newDecodeServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/"+pkg+":decodeIntegrityToken" {
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ya29.integrity" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["integrityToken"] != "device-token" {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientDecode(t *testing.T) {
	const body = `{
	  "tokenPayloadExternal": {
	    "requestDetails": {"requestPackageName": "maninder.co.in.milow", "timestampMillis": "1700000000000"},
	    "appIntegrity": {"appRecognitionVerdict": "PLAY_RECOGNIZED", "packageName": "maninder.co.in.milow", "versionCode": "42"},
	    "deviceIntegrity": {"deviceRecognitionVerdict": ["MEETS_BASIC_INTEGRITY", "MEETS_DEVICE_INTEGRITY"]},
	    "accountDetails": {"appLicensingVerdict": "LICENSED"}
	  }
	}`
	server := newDecodeServer(t, http.StatusOK, body)
	c := integrity.NewClient(fake.NewTokenSource("ya29.integrity"), integrity.WithBaseURL(server.URL))

	got, err := c.Decode(context.Background(), pkg, "device-token")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	want := &milow.IntegrityVerdict{
		RequestDetails:  &milow.RequestDetails{RequestPackageName: pkg, TimestampMillis: "1700000000000"},
		AppIntegrity:    &milow.AppIntegrity{AppRecognitionVerdict: "PLAY_RECOGNIZED", PackageName: pkg, VersionCode: "42"},
		DeviceIntegrity: &milow.DeviceIntegrity{DeviceRecognitionVerdict: []string{"MEETS_BASIC_INTEGRITY", "MEETS_DEVICE_INTEGRITY"}},
		AccountDetails:  &milow.AccountDetails{AppLicensingVerdict: "LICENSED"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestClientDecode_MissingPayload(t *testing.T) {
	server := newDecodeServer(t, http.StatusOK, `{}`)
	c := integrity.NewClient(fake.NewTokenSource("ya29.integrity"), integrity.WithBaseURL(server.URL))

	got, err := c.Decode(context.Background(), pkg, "device-token")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if diff := cmp.Diff(&milow.IntegrityVerdict{}, got); diff != "" {
		t.Errorf("expected empty verdict (-want +got):\n%s", diff)
	}
}

func TestClientDecode_UpstreamError(t *testing.T) {
	const body = `{"error":{"code":400,"message":"Integrity token cannot be decoded"}}`
	server := newDecodeServer(t, http.StatusBadRequest, body)
	c := integrity.NewClient(fake.NewTokenSource("ya29.integrity"), integrity.WithBaseURL(server.URL))

	_, err := c.Decode(context.Background(), pkg, "device-token")
	var vErr *milow.VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *milow.VerificationError, got %T (%v)", err, err)
	}
	if vErr.StatusCode != http.StatusBadRequest || vErr.Body != body {
		t.Errorf("got %d %q", vErr.StatusCode, vErr.Body)
	}
}

func TestClientDecode_TransportError(t *testing.T) {
	server := newDecodeServer(t, http.StatusOK, `{}`)
	server.Close()
	c := integrity.NewClient(fake.NewTokenSource("ya29.integrity"), integrity.WithBaseURL(server.URL))

	_, err := c.Decode(context.Background(), pkg, "device-token")
	var trErr *milow.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected *milow.TransportError, got %T (%v)", err, err)
	}
}

func TestClientDecode_TokenFailure(t *testing.T) {
	cfgErr := &milow.ConfigurationError{Key: "GOOGLE_SERVICE_ACCOUNT_KEY", Reason: "secret is not set"}
	c := integrity.NewClient(fake.FailingTokenSource(cfgErr), integrity.WithBaseURL("http://127.0.0.1:0"))

	_, err := c.Decode(context.Background(), pkg, "device-token")
	if !errors.Is(err, cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

type countingTransport struct {
	n atomic.Int32
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.n.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

func TestClientDecode_CustomHTTPClient(t *testing.T) {
	server := newDecodeServer(t, http.StatusOK, `{}`)
	rt := &countingTransport{}
	c := integrity.NewClient(fake.NewTokenSource("ya29.integrity"),
		integrity.WithBaseURL(server.URL+"/"),
		integrity.WithHTTPClient(&http.Client{Transport: rt}),
	)

	if _, err := c.Decode(context.Background(), pkg, "device-token"); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if n := rt.n.Load(); n != 1 {
		t.Errorf("transport saw %d requests, want 1", n)
	}
}
