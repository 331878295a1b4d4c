package tenant

import (
	"context"
	"errors"
	"testing"

	milow "github.com/milow-app/milow-functions"
)

// mockBackend implements Backend for testing
type mockBackend struct {
	profiles   map[string]*milow.Profile
	calls      int
	shouldFail bool
}

func (m *mockBackend) GetProfile(_ context.Context, id string) (*milow.Profile, error) {
	m.calls++
	if m.shouldFail {
		return nil, errors.New("lookup failed")
	}
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, milow.ErrNotFound
}

func newBackend() *mockBackend {
	return &mockBackend{
		profiles: map[string]*milow.Profile{
			"u-1": {ID: "u-1", CompanyID: "c-1"},
			"u-2": {ID: "u-2", CompanyID: "c-2"},
			"u-3": {ID: "u-3"},
		},
	}
}

func TestValidateMembership(t *testing.T) {
	tests := []struct {
		name      string
		companyID string
		userID    string
		want      bool
	}{
		{"same company", "c-1", "u-1", true},
		{"other company", "c-1", "u-2", false},
		{"no company on profile", "c-1", "u-3", false},
		{"unknown user", "c-1", "ghost", false},
		{"caller without company", "", "u-3", false},
		{"empty user", "c-1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(newBackend())
			got, err := svc.ValidateMembership(context.Background(), tt.companyID, tt.userID)
			if err != nil {
				t.Fatalf("ValidateMembership returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateMembership(%q, %q) = %v, want %v", tt.companyID, tt.userID, got, tt.want)
			}
		})
	}
}

func TestValidateMembership_EmptyIDsSkipBackend(t *testing.T) {
	backend := newBackend()
	svc := New(backend)

	_, _ = svc.ValidateMembership(context.Background(), "", "u-1")
	if backend.calls != 0 {
		t.Errorf("expected no backend calls, got %d", backend.calls)
	}
}

func TestValidateMembership_BackendError(t *testing.T) {
	backend := newBackend()
	backend.shouldFail = true
	svc := New(backend)

	if _, err := svc.ValidateMembership(context.Background(), "c-1", "u-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRequireMember(t *testing.T) {
	svc := New(newBackend())

	if err := svc.RequireMember(context.Background(), "c-1", "u-1"); err != nil {
		t.Errorf("RequireMember(member) = %v", err)
	}
	if err := svc.RequireMember(context.Background(), "c-1", "u-2"); !errors.Is(err, ErrNotMember) {
		t.Errorf("RequireMember(outsider) = %v, want ErrNotMember", err)
	}
}
