package webhook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/fake"
	"github.com/milow-app/milow-functions/push"
	"github.com/milow-app/milow-functions/webhook"
)

func release(rec map[string]any) webhook.Payload {
	return webhook.Payload{Type: webhook.TypeInsert, Table: "app_version", Schema: "public", Record: rec}
}

func devices(opts ...fake.Option) *fake.Backend {
	base := []fake.Option{
		fake.WithProfile("d-1", "c-1", "driver"),
		fake.WithProfile("d-2", "c-1", "driver"),
		fake.WithProfile("d-3", "c-2", "driver"),
		fake.WithFCMToken("d-1", "tok-a"),
		fake.WithFCMToken("d-2", "tok-b"),
	}
	return fake.NewBackend(append(base, opts...)...)
}

func TestReleases_Broadcast(t *testing.T) {
	b := devices()
	m := fake.NewMessenger()
	r := webhook.NewReleases(b, push.Static(m))

	res, err := r.Handle(context.Background(), release(map[string]any{
		"latest_version": "1.4.0",
		"platform":       "android",
		"changelog":      "Faster load list",
		"download_url":   "https://example.com/milow.apk",
	}))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	want := &webhook.ReleaseResult{Message: "Sent notifications to 2 devices", Delivered: 2}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	wantAnn := []milow.Announcement{{Title: "New Update: v1.4.0", Body: "Faster load list", Version: "1.4.0", IsActive: true}}
	if diff := cmp.Diff(wantAnn, b.Announcements()); diff != "" {
		t.Errorf("announcements mismatch (-want +got):\n%s", diff)
	}

	sent := m.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	wantMsg := milow.PushMessage{
		Title: "New Update Available: v1.4.0",
		Body:  "Android update available. \nFaster load list",
		Data: map[string]string{
			"click_action": "FLUTTER_NOTIFICATION_CLICK",
			"type":         "app_update",
			"version":      "1.4.0",
			"url":          "https://example.com/milow.apk",
		},
	}
	for _, s := range sent {
		if diff := cmp.Diff(wantMsg, s.Message); diff != "" {
			t.Errorf("message to %s mismatch (-want +got):\n%s", s.Token, diff)
		}
	}
}

func TestReleases_DefaultsAndIOS(t *testing.T) {
	m := fake.NewMessenger()
	r := webhook.NewReleases(devices(), push.Static(m))

	if _, err := r.Handle(context.Background(), release(map[string]any{"latest_version": "2.0.0", "platform": "ios"})); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	got := m.Sent()[0].Message
	if got.Body != "iOS update available. \nCheck out the new features!" {
		t.Errorf("Body = %q", got.Body)
	}
	if got.Data["url"] != "" {
		t.Errorf("url = %q, want empty", got.Data["url"])
	}
}

func TestReleases_PartialFailure(t *testing.T) {
	m := fake.NewMessenger().FailFor("tok-b", &push.SendError{StatusCode: 404, Body: "UNREGISTERED"})
	r := webhook.NewReleases(devices(), push.Static(m), webhook.WithMaxConcurrency(1))

	res, err := r.Handle(context.Background(), release(map[string]any{"latest_version": "1.4.1"}))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if res.Delivered != 1 || res.Failed != 1 {
		t.Errorf("delivered=%d failed=%d, want 1/1", res.Delivered, res.Failed)
	}
	if res.Message != "Sent notifications to 2 devices" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestReleases_NoDevices(t *testing.T) {
	b := fake.NewBackend(fake.WithProfile("d-1", "c-1", "driver"))
	connected := false
	connect := func(context.Context) (milow.Messenger, error) {
		connected = true
		return fake.NewMessenger(), nil
	}

	res, err := webhook.NewReleases(b, connect).Handle(context.Background(), release(map[string]any{"latest_version": "1.5.0"}))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if res.Message != "Saved announcement, no devices to notify" {
		t.Errorf("Message = %q", res.Message)
	}
	if connected {
		t.Error("messenger should not be connected without devices")
	}
	if len(b.Announcements()) != 1 {
		t.Error("announcement not saved")
	}
}

func TestReleases_AnnouncementFailureIsNotFatal(t *testing.T) {
	b := devices(fake.FailOn("InsertAnnouncement", errors.New("rls violation")))
	m := fake.NewMessenger()

	res, err := webhook.NewReleases(b, push.Static(m)).Handle(context.Background(), release(map[string]any{"latest_version": "1.6.0"}))
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if res.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", res.Delivered)
	}
}

func TestReleases_Errors(t *testing.T) {
	connErr := &milow.ConfigurationError{Key: "FIREBASE_SERVICE_ACCOUNT", Reason: "not set"}
	failing := func(context.Context) (milow.Messenger, error) { return nil, connErr }

	t.Run("connector", func(t *testing.T) {
		_, err := webhook.NewReleases(devices(), failing).Handle(context.Background(), release(map[string]any{"latest_version": "1"}))
		var cfgErr *milow.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected *milow.ConfigurationError, got %v", err)
		}
	})

	t.Run("token listing", func(t *testing.T) {
		listErr := errors.New("db down")
		b := devices(fake.FailOn("ListFCMTokens", listErr))
		_, err := webhook.NewReleases(b, push.Static(fake.NewMessenger())).Handle(context.Background(), release(nil))
		if !errors.Is(err, listErr) {
			t.Fatalf("got %v, want %v", err, listErr)
		}
	})
}

func TestReleases_IgnoresOtherEvents(t *testing.T) {
	tests := []webhook.Payload{
		{Type: webhook.TypeUpdate, Table: "app_version"},
		{Type: webhook.TypeInsert, Table: "loads"},
		{},
	}
	for _, p := range tests {
		b := devices()
		m := fake.NewMessenger()
		res, err := webhook.NewReleases(b, push.Static(m)).Handle(context.Background(), p)
		if err != nil {
			t.Fatalf("Handle(%+v) error: %v", p, err)
		}
		if res.Message != "Not an app_version INSERT event" {
			t.Errorf("Handle(%+v) message = %q", p, res.Message)
		}
		if len(b.Announcements()) != 0 || len(m.Sent()) != 0 {
			t.Errorf("Handle(%+v) had side effects", p)
		}
	}
}

func TestLoadStatus(t *testing.T) {
	tests := []struct {
		name string
		p    webhook.Payload
		want webhook.LoadStatusResult
	}{
		{
			name: "other table",
			p:    webhook.Payload{Type: webhook.TypeUpdate, Table: "profiles"},
			want: webhook.LoadStatusResult{Message: "Ignored: Not loads table"},
		},
		{
			name: "insert",
			p:    webhook.Payload{Type: webhook.TypeInsert, Table: "loads"},
			want: webhook.LoadStatusResult{Message: "Ignored: Not an UPDATE"},
		},
		{
			name: "unchanged",
			p: webhook.Payload{
				Type: webhook.TypeUpdate, Table: "loads",
				Record:    map[string]any{"id": "L-1", "status": "in_transit"},
				OldRecord: map[string]any{"id": "L-1", "status": "in_transit"},
			},
			want: webhook.LoadStatusResult{Message: "Status unchanged"},
		},
		{
			name: "changed",
			p: webhook.Payload{
				Type: webhook.TypeUpdate, Table: "loads",
				Record:    map[string]any{"id": float64(42), "status": "delivered"},
				OldRecord: map[string]any{"id": float64(42), "status": "in_transit"},
			},
			want: webhook.LoadStatusResult{Message: "Notification processed for Load 42", Change: "in_transit -> delivered"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := webhook.LoadStatus(context.Background(), tt.p, nil)
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
			if got.Processed() != (tt.want.Change != "") {
				t.Errorf("Processed() = %v", got.Processed())
			}
		})
	}
}
