package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/supabase"
)

const (
	anonKey    = "anon-key"
	serviceKey = "service-key"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Auth   string
	Prefer string
	Body   map[string]any
}

type backend struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newBackend(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *backend {
	t.Helper()
	b := &backend{routes: routes}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			APIKey: r.Header.Get("apikey"),
			Auth:   r.Header.Get("Authorization"),
			Prefer: r.Header.Get("Prefer"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		b.mu.Lock()
		b.requests = append(b.requests, rec)
		b.mu.Unlock()

		h, ok := b.routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"route not found"}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) last() recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func reply(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestVerify(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /auth/v1/user": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer user-jwt" {
				reply(http.StatusUnauthorized, `{"msg":"invalid JWT"}`)(w, r)
				return
			}
			reply(http.StatusOK, `{"id":"u-1","email":"a@example.com","role":"authenticated","user_metadata":{"full_name":"Ann"}}`)(w, r)
		},
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	claims, err := c.Verify(context.Background(), "user-jwt")
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	want := &milow.Claims{Subject: "u-1", Email: "a@example.com", Role: "authenticated", Extra: map[string]any{"full_name": "Ann"}}
	if diff := cmp.Diff(want, claims); diff != "" {
		t.Errorf("claims mismatch (-want +got):\n%s", diff)
	}
	if got := b.last(); got.APIKey != anonKey {
		t.Errorf("apikey = %q, want anon key", got.APIKey)
	}

	if _, err := c.Verify(context.Background(), "forged"); !errors.Is(err, supabase.ErrUnauthorized) {
		t.Errorf("forged token: got %v, want ErrUnauthorized", err)
	}
	if _, err := c.Verify(context.Background(), ""); !errors.Is(err, supabase.ErrUnauthorized) {
		t.Errorf("empty token: got %v, want ErrUnauthorized", err)
	}
}

func TestGetProfile(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/v1/profiles": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("id") == "eq.p-1" {
				reply(http.StatusOK, `[{"id":"p-1","role":"admin","company_id":"c-1","full_name":"Ann","companies":{"name":"Acme Haulage"}}]`)(w, r)
				return
			}
			reply(http.StatusOK, `[]`)(w, r)
		},
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	got, err := c.GetProfile(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("GetProfile() error: %v", err)
	}
	want := &milow.Profile{ID: "p-1", Role: "admin", CompanyID: "c-1", CompanyName: "Acme Haulage", FullName: "Ann"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	if rec := b.last(); rec.APIKey != serviceKey || rec.Auth != "Bearer "+serviceKey {
		t.Errorf("admin call used %q / %q", rec.APIKey, rec.Auth)
	}

	if _, err := c.GetProfile(context.Background(), "missing"); !errors.Is(err, milow.ErrNotFound) {
		t.Errorf("missing profile: got %v, want ErrNotFound", err)
	}
}

func TestInviteUserByEmail(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/v1/invite": reply(http.StatusOK, `{"id":"u-2","email":"new@example.com"}`),
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	u, err := c.InviteUserByEmail(context.Background(), "new@example.com", milow.InviteParams{
		Data:       map[string]any{"full_name": "New", "company_name": "Milow"},
		RedirectTo: "https://proj/auth/callback",
	})
	if err != nil {
		t.Fatalf("InviteUserByEmail() error: %v", err)
	}
	if u.ID != "u-2" {
		t.Errorf("ID = %q", u.ID)
	}
	rec := b.last()
	if rec.Query != "redirect_to=https%3A%2F%2Fproj%2Fauth%2Fcallback" {
		t.Errorf("query = %q", rec.Query)
	}
	if rec.Body["email"] != "new@example.com" {
		t.Errorf("body = %v", rec.Body)
	}
}

func TestCreateUser_Conflict(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/v1/admin/users": reply(http.StatusUnprocessableEntity, `{"msg":"A user with this email address has already been registered"}`),
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	_, err := c.CreateUser(context.Background(), milow.CreateUserParams{Email: "a@example.com", Password: "pw", EmailConfirm: true})
	var apiErr *supabase.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *supabase.APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Message != "A user with this email address has already been registered" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if b.last().Body["email_confirm"] != true {
		t.Errorf("email_confirm not sent: %v", b.last().Body)
	}
}

func TestAdminUserCalls(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /auth/v1/admin/users/u-1":    reply(http.StatusOK, `{"id":"u-1"}`),
		"DELETE /auth/v1/admin/users/u-1": reply(http.StatusOK, `{}`),
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)
	ctx := context.Background()

	if err := c.UpdateUserPassword(ctx, "u-1", "n3w-pass"); err != nil {
		t.Fatalf("UpdateUserPassword() error: %v", err)
	}
	if b.last().Body["password"] != "n3w-pass" {
		t.Errorf("password body = %v", b.last().Body)
	}
	if err := c.DeleteUser(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteUser() error: %v", err)
	}
	if err := c.DeleteUser(ctx, "u-404"); !errors.Is(err, milow.ErrNotFound) {
		t.Errorf("DeleteUser(missing) = %v, want ErrNotFound", err)
	}
}

func TestTableWrites(t *testing.T) {
	ok := reply(http.StatusCreated, ``)
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"PATCH /rest/v1/profiles":        reply(http.StatusNoContent, ``),
		"DELETE /rest/v1/profiles":       reply(http.StatusNoContent, ``),
		"POST /rest/v1/user_credentials": ok,
		"POST /rest/v1/announcements":    ok,
		"GET /rest/v1/roles":             reply(http.StatusOK, `[{"name":"driver"}]`),
		"GET /rest/v1/profiles":          reply(http.StatusOK, `[{"fcm_token":"t1"},{"fcm_token":""},{"fcm_token":"t2"}]`),
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)
	ctx := context.Background()

	if err := c.UpdateProfile(ctx, "p-1", milow.ProfileUpdate{CompanyID: "c-1", Role: "driver", IsVerified: true}); err != nil {
		t.Fatalf("UpdateProfile() error: %v", err)
	}
	if rec := b.last(); rec.Query != "id=eq.p-1" || rec.Body["is_verified"] != true || rec.Body["role"] != "driver" {
		t.Errorf("UpdateProfile request = %+v", rec)
	}

	if err := c.DeleteProfile(ctx, "p-1"); err != nil {
		t.Fatalf("DeleteProfile() error: %v", err)
	}

	if err := c.UpsertCredentials(ctx, milow.UserCredentials{ProfileID: "p-1", MustChangePassword: true, CreatedBy: "admin"}); err != nil {
		t.Fatalf("UpsertCredentials() error: %v", err)
	}
	rec := b.last()
	if rec.Query != "on_conflict=profile_id" || rec.Prefer != "resolution=merge-duplicates,return=minimal" {
		t.Errorf("upsert request = %+v", rec)
	}
	if _, ok := rec.Body["generated_username"]; ok {
		t.Error("empty username should not be sent on upsert")
	}

	if err := c.InsertCredentials(ctx, milow.UserCredentials{ProfileID: "p-1", GeneratedUsername: "ann01", MustChangePassword: true}); err != nil {
		t.Fatalf("InsertCredentials() error: %v", err)
	}
	if err := c.InsertAnnouncement(ctx, milow.Announcement{Title: "New Update: v1.2.0", Version: "1.2.0", IsActive: true}); err != nil {
		t.Fatalf("InsertAnnouncement() error: %v", err)
	}

	name, err := c.RoleName(ctx, "r-1")
	if err != nil || name != "driver" {
		t.Errorf("RoleName() = %q, %v", name, err)
	}

	tokens, err := c.ListFCMTokens(ctx)
	if err != nil {
		t.Fatalf("ListFCMTokens() error: %v", err)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTransportError(t *testing.T) {
	b := newBackend(t, nil)
	b.Close()
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	_, err := c.RoleName(context.Background(), "r-1")
	var trErr *milow.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected *milow.TransportError, got %T (%v)", err, err)
	}
}

func TestRedirectURL(t *testing.T) {
	c := supabase.NewClient("https://abcd.supabase.co/", anonKey, serviceKey)
	if got := c.RedirectURL(); got != "https://abcd/auth/callback" {
		t.Errorf("RedirectURL() = %q", got)
	}
}

func TestRequestHonorsContext(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/v1/profiles": func(_ http.ResponseWriter, r *http.Request) { <-r.Context().Done() },
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.GetProfile(ctx, "u-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GetProfile() = %v, want context.DeadlineExceeded", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("call returned after %v, want prompt cancellation", d)
	}
}

func TestAPIErrorKeepsStatus(t *testing.T) {
	b := newBackend(t, map[string]func(http.ResponseWriter, *http.Request){
		"PUT /auth/v1/admin/users/u-1": reply(http.StatusUnprocessableEntity, `{"msg":"Password should be at least 6 characters"}`),
	})
	c := supabase.NewClient(b.URL, anonKey, serviceKey)

	err := c.UpdateUserPassword(context.Background(), "u-1", "123")
	var apiErr *supabase.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *supabase.APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Message != "Password should be at least 6 characters" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if errors.Is(err, milow.ErrNotFound) {
		t.Error("422 must not read as ErrNotFound")
	}
}
