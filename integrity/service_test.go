package integrity_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/audit"
	"github.com/milow-app/milow-functions/fake"
	"github.com/milow-app/milow-functions/integrity"
	"github.com/milow-app/milow-functions/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestServiceVerify(t *testing.T) {
	tests := []struct {
		name    string
		verdict *milow.IntegrityVerdict
		want    integrity.Report
	}{
		{
			name: "accepted",
			verdict: &milow.IntegrityVerdict{
				AppIntegrity:    &milow.AppIntegrity{AppRecognitionVerdict: "PLAY_RECOGNIZED", PackageName: pkg},
				DeviceIntegrity: &milow.DeviceIntegrity{DeviceRecognitionVerdict: []string{"MEETS_BASIC_INTEGRITY", "MEETS_DEVICE_INTEGRITY"}},
				AccountDetails:  &milow.AccountDetails{AppLicensingVerdict: "LICENSED"},
			},
			want: integrity.Report{
				Valid:   true,
				Message: "Integrity verified",
				Verdict: integrity.Summary{
					DeviceIntegrity: "MEETS_BASIC_INTEGRITY, MEETS_DEVICE_INTEGRITY",
					AppIntegrity:    "PLAY_RECOGNIZED",
					Licensing:       "LICENSED",
				},
			},
		},
		{
			name:    "empty verdict",
			verdict: nil,
			want: integrity.Report{
				Valid:   false,
				Message: "Device does not meet basic integrity",
				Verdict: integrity.Summary{DeviceIntegrity: "unknown", AppIntegrity: "unknown", Licensing: "unknown"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := fake.NewDecoder(tt.verdict)
			svc := integrity.NewService(dec, pkg)

			got, err := svc.Verify(context.Background(), "device-token")
			if err != nil {
				t.Fatalf("Verify() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
			if p, tok := dec.Last(); p != pkg || tok != "device-token" {
				t.Errorf("Decode called with %q, %q", p, tok)
			}
		})
	}
}

func TestServiceVerify_DecodeError(t *testing.T) {
	upstream := &milow.VerificationError{StatusCode: 400, Body: "bad token"}
	svc := integrity.NewService(fake.FailingDecoder(upstream), pkg)

	_, err := svc.Verify(context.Background(), "device-token")
	var vErr *milow.VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *milow.VerificationError, got %v", err)
	}
}

func TestServiceVerify_AuditAndMetrics(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event
	auditor := audit.New(4, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	svc := integrity.NewService(fake.NewDecoder(nil), pkg,
		integrity.WithAudit(auditor),
		integrity.WithMetrics(metrics.NewWithRegistry(prometheus.NewRegistry())),
	)
	if _, err := svc.Verify(context.Background(), "t"); err != nil {
		t.Fatal(err)
	}
	_ = auditor.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Action != audit.ActionVerifyIntegrity || events[0].Result != "denied" {
		t.Errorf("unexpected audit events %+v", events)
	}
}

func TestReportJSON(t *testing.T) {
	r := integrity.Report{
		Valid:   true,
		Message: "Integrity verified",
		Verdict: integrity.Summary{DeviceIntegrity: "MEETS_BASIC_INTEGRITY", AppIntegrity: "unknown", Licensing: "unknown"},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	const want = `{"valid":true,"message":"Integrity verified","verdict":{"deviceIntegrity":"MEETS_BASIC_INTEGRITY","appIntegrity":"unknown","licensing":"unknown"}}`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}
}
