// Package fake provides in-memory implementations of the milow interfaces for testing.
//
// Use fake.NewBackend() and fake.NewClient() in unit tests to avoid network
// calls to the managed backend and to Google.
package fake

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	milow "github.com/milow-app/milow-functions"
)

// Option configures the fake backend.
type Option func(*Backend)

// Backend is an in-memory stand-in for the managed auth/database backend.
// It serves profiles, roles, auth users, credentials and announcements, and
// doubles as a milow.TokenVerifier that treats the bearer token as a user ID.
type Backend struct {
	mu            sync.RWMutex
	profiles      map[string]*milow.Profile        // userID → profile
	companies     map[string]string                // companyID → name
	roles         map[string]string                // roleID → name
	users         map[string]*milow.AuthUser       // userID → auth user
	passwords     map[string]string                // userID → password
	credentials   map[string]milow.UserCredentials // profileID → credentials
	announcements []milow.Announcement
	invites       []milow.InviteParams
	failures      map[string]error // method → forced error
	nextID        int
}

// WithProfile adds a profile and a matching auth user.
func WithProfile(id, companyID, role string) Option {
	return func(b *Backend) {
		b.profiles[id] = &milow.Profile{ID: id, CompanyID: companyID, Role: role}
		if _, ok := b.users[id]; !ok {
			b.users[id] = &milow.AuthUser{ID: id, Email: id + "@example.com"}
		}
	}
}

// WithCompany names a company.
func WithCompany(id, name string) Option {
	return func(b *Backend) { b.companies[id] = name }
}

// WithRole adds a row to the roles table.
func WithRole(id, name string) Option {
	return func(b *Backend) { b.roles[id] = name }
}

// WithFCMToken sets the push token of an existing profile.
func WithFCMToken(profileID, token string) Option {
	return func(b *Backend) {
		if p, ok := b.profiles[profileID]; ok {
			p.FCMToken = token
		}
	}
}

// WithAuthUser adds an auth user without a profile.
func WithAuthUser(id, email string) Option {
	return func(b *Backend) { b.users[id] = &milow.AuthUser{ID: id, Email: email} }
}

// FailOn forces the named method (e.g. "InviteUserByEmail") to return err.
func FailOn(method string, err error) Option {
	return func(b *Backend) { b.failures[method] = err }
}

// NewBackend creates an empty fake backend configured by opts.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		profiles:    make(map[string]*milow.Profile),
		companies:   make(map[string]string),
		roles:       make(map[string]string),
		users:       make(map[string]*milow.AuthUser),
		passwords:   make(map[string]string),
		credentials: make(map[string]milow.UserCredentials),
		failures:    make(map[string]error),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewClient creates a *milow.Client with all services wired to in-memory fakes.
func NewClient(b *Backend) *milow.Client {
	c, _ := milow.NewClient(
		milow.Config{PackageName: milow.DefaultPackageName, BackendURL: "fake://localhost"},
		milow.WithTokenVerifier(b),
		milow.WithGoogleTokenSource(NewTokenSource("fake-google-token")),
		milow.WithMessenger(NewMessenger()),
		milow.WithIntegrityDecoder(NewDecoder(nil)),
	)
	return c
}

func (b *Backend) fail(method string) error {
	return b.failures[method]
}

// --- TokenVerifier ---

// Verify treats token as a user ID.
func (b *Backend) Verify(_ context.Context, token string) (*milow.Claims, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	u, ok := b.users[token]
	if !ok {
		return nil, fmt.Errorf("milow/fake: unknown token %q", token)
	}
	return &milow.Claims{
		Subject:   u.ID,
		Email:     u.Email,
		Role:      "authenticated",
		ExpiresAt: time.Now().Add(time.Hour),
		IssuedAt:  time.Now(),
		Issuer:    "fake",
	}, nil
}

// --- profiles ---

// GetProfile returns a copy of the profile, with its company name resolved.
func (b *Backend) GetProfile(_ context.Context, id string) (*milow.Profile, error) {
	if err := b.fail("GetProfile"); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.profiles[id]
	if !ok {
		return nil, milow.ErrNotFound
	}
	cp := *p
	cp.CompanyName = b.companies[p.CompanyID]
	return &cp, nil
}

// UpdateProfile writes the given columns, creating the profile if needed.
func (b *Backend) UpdateProfile(_ context.Context, id string, u milow.ProfileUpdate) error {
	if err := b.fail("UpdateProfile"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.profiles[id]
	if !ok {
		p = &milow.Profile{ID: id}
		b.profiles[id] = p
	}
	p.CompanyID = u.CompanyID
	p.RoleID = u.RoleID
	p.FullName = u.FullName
	p.Role = u.Role
	p.IsVerified = u.IsVerified
	return nil
}

// DeleteProfile removes a profile.
func (b *Backend) DeleteProfile(_ context.Context, id string) error {
	if err := b.fail("DeleteProfile"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.profiles, id)
	return nil
}

// RoleName resolves a role ID.
func (b *Backend) RoleName(_ context.Context, roleID string) (string, error) {
	if err := b.fail("RoleName"); err != nil {
		return "", err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	name, ok := b.roles[roleID]
	if !ok {
		return "", milow.ErrNotFound
	}
	return name, nil
}

// ListFCMTokens returns the non-empty push tokens of all profiles, sorted.
func (b *Backend) ListFCMTokens(_ context.Context) ([]string, error) {
	if err := b.fail("ListFCMTokens"); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var tokens []string
	for _, p := range b.profiles {
		if p.FCMToken != "" {
			tokens = append(tokens, p.FCMToken)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

// --- auth admin ---

// InviteUserByEmail creates an auth user unless the email is already registered.
func (b *Backend) InviteUserByEmail(_ context.Context, email string, params milow.InviteParams) (*milow.AuthUser, error) {
	if err := b.fail("InviteUserByEmail"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.emailTaken(email) {
		return nil, fmt.Errorf("milow/fake: a user with this email address has already been registered")
	}
	b.invites = append(b.invites, params)
	return b.addUser(email, params.Data), nil
}

// CreateUser creates a confirmed auth user with a password.
func (b *Backend) CreateUser(_ context.Context, params milow.CreateUserParams) (*milow.AuthUser, error) {
	if err := b.fail("CreateUser"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.emailTaken(params.Email) {
		return nil, fmt.Errorf("milow/fake: email %q already exists", params.Email)
	}
	u := b.addUser(params.Email, params.UserMetadata)
	b.passwords[u.ID] = params.Password
	return u, nil
}

// UpdateUserPassword sets a user's password.
func (b *Backend) UpdateUserPassword(_ context.Context, id, password string) error {
	if err := b.fail("UpdateUserPassword"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[id]; !ok {
		return milow.ErrNotFound
	}
	b.passwords[id] = password
	return nil
}

// DeleteUser removes an auth user.
func (b *Backend) DeleteUser(_ context.Context, id string) error {
	if err := b.fail("DeleteUser"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[id]; !ok {
		return milow.ErrNotFound
	}
	delete(b.users, id)
	delete(b.passwords, id)
	return nil
}

func (b *Backend) emailTaken(email string) bool {
	for _, u := range b.users {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (b *Backend) addUser(email string, meta map[string]any) *milow.AuthUser {
	b.nextID++
	u := &milow.AuthUser{ID: fmt.Sprintf("user-%d", b.nextID), Email: email, UserMetadata: meta}
	b.users[u.ID] = u
	cp := *u
	return &cp
}

// --- credentials and announcements ---

// InsertCredentials stores a credentials row.
func (b *Backend) InsertCredentials(_ context.Context, c milow.UserCredentials) error {
	if err := b.fail("InsertCredentials"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.credentials[c.ProfileID]; ok {
		return fmt.Errorf("milow/fake: duplicate credentials for %q", c.ProfileID)
	}
	b.credentials[c.ProfileID] = c
	return nil
}

// UpsertCredentials stores a credentials row, keeping an existing username.
func (b *Backend) UpsertCredentials(_ context.Context, c milow.UserCredentials) error {
	if err := b.fail("UpsertCredentials"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.credentials[c.ProfileID]; ok && c.GeneratedUsername == "" {
		c.GeneratedUsername = prev.GeneratedUsername
	}
	b.credentials[c.ProfileID] = c
	return nil
}

// InsertAnnouncement appends an announcement.
func (b *Backend) InsertAnnouncement(_ context.Context, a milow.Announcement) error {
	if err := b.fail("InsertAnnouncement"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.announcements = append(b.announcements, a)
	return nil
}

// --- inspection helpers ---

// Profile returns the stored profile, or nil.
func (b *Backend) Profile(id string) *milow.Profile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.profiles[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// User returns the stored auth user, or nil.
func (b *Backend) User(id string) *milow.AuthUser {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if u, ok := b.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

// UserByEmail returns the auth user registered with email, or nil.
func (b *Backend) UserByEmail(email string) *milow.AuthUser {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, u := range b.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp
		}
	}
	return nil
}

// Password returns the password last set for a user.
func (b *Backend) Password(id string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.passwords[id]
}

// Credentials returns the credentials row of a profile.
func (b *Backend) Credentials(profileID string) (milow.UserCredentials, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.credentials[profileID]
	return c, ok
}

// Announcements returns all stored announcements.
func (b *Backend) Announcements() []milow.Announcement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]milow.Announcement(nil), b.announcements...)
}

// Invites returns the parameters of every successful invitation.
func (b *Backend) Invites() []milow.InviteParams {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]milow.InviteParams(nil), b.invites...)
}

// --- TokenSource ---

// TokenSource returns a fixed access token and counts calls.
type TokenSource struct {
	token string
	err   error
	calls atomic.Int32
}

// NewTokenSource creates a token source that always yields token.
func NewTokenSource(token string) *TokenSource {
	return &TokenSource{token: token}
}

// FailingTokenSource creates a token source that always fails with err.
func FailingTokenSource(err error) *TokenSource {
	return &TokenSource{err: err}
}

// Token implements milow.TokenSource.
func (s *TokenSource) Token(_ context.Context) (*milow.AccessToken, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &milow.AccessToken{
		AccessToken: s.token,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

// Calls returns how many times Token was called.
func (s *TokenSource) Calls() int { return int(s.calls.Load()) }

// --- Messenger ---

// Sent is a push message recorded by Messenger.
type Sent struct {
	Token   string
	Message milow.PushMessage
}

// Messenger records push messages and fails for configured tokens.
type Messenger struct {
	mu    sync.Mutex
	sent  []Sent
	fails map[string]error
}

// NewMessenger creates a messenger that accepts every message.
func NewMessenger() *Messenger {
	return &Messenger{fails: make(map[string]error)}
}

// FailFor makes sends to deviceToken fail with err.
func (m *Messenger) FailFor(deviceToken string, err error) *Messenger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[deviceToken] = err
	return m
}

// Send implements milow.Messenger.
func (m *Messenger) Send(_ context.Context, deviceToken string, msg milow.PushMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fails[deviceToken]; ok {
		return err
	}
	m.sent = append(m.sent, Sent{Token: deviceToken, Message: msg})
	return nil
}

// Sent returns the successfully sent messages.
func (m *Messenger) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// --- IntegrityDecoder ---

// Decoder returns a fixed verdict.
type Decoder struct {
	mu          sync.Mutex
	verdict     *milow.IntegrityVerdict
	err         error
	lastPackage string
	lastToken   string
}

// NewDecoder creates a decoder that returns verdict (an empty verdict if nil).
func NewDecoder(verdict *milow.IntegrityVerdict) *Decoder {
	if verdict == nil {
		verdict = &milow.IntegrityVerdict{}
	}
	return &Decoder{verdict: verdict}
}

// FailingDecoder creates a decoder that always fails with err.
func FailingDecoder(err error) *Decoder {
	return &Decoder{err: err}
}

// Decode implements milow.IntegrityDecoder.
func (d *Decoder) Decode(_ context.Context, packageName, integrityToken string) (*milow.IntegrityVerdict, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPackage, d.lastToken = packageName, integrityToken
	if d.err != nil {
		return nil, d.err
	}
	return d.verdict, nil
}

// Last returns the package name and token of the last Decode call.
func (d *Decoder) Last() (packageName, integrityToken string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPackage, d.lastToken
}

// --- Signer ---

// Signer is a deterministic signer returning SHA-256 of its input.
type Signer struct{}

// Sign returns sha256(data).
func (Signer) Sign(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

var (
	_ milow.TokenVerifier    = (*Backend)(nil)
	_ milow.TokenSource      = (*TokenSource)(nil)
	_ milow.Messenger        = (*Messenger)(nil)
	_ milow.IntegrityDecoder = (*Decoder)(nil)
)
