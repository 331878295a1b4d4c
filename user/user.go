// Package user implements the administrative user operations: invite,
// delete and password reset.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/audit"
	"github.com/milow-app/milow-functions/authz"
	"github.com/milow-app/milow-functions/metrics"
	"github.com/milow-app/milow-functions/tenant"
)

// Messages returned to callers.
const (
	MsgInviteForbidden       = "Only admins can invite users"
	MsgDeleteForbidden       = "Only admins can delete users"
	MsgResetForbidden        = "Only admins can reset passwords"
	MsgProfileNotFound       = "Profile not found"
	MsgUnauthorized          = "Unauthorized"
	MsgEmailPasswordRequired = "Email and password are required"
	MsgUserIDRequired        = "User ID is required"
	MsgResetFieldsRequired   = "user_id and new_password are required"
	MsgNotInCompany          = "User not found in your company"
)

// DefaultCompanyName is used in invitations when the caller has no company.
const DefaultCompanyName = "Milow"

// ErrInvalidRequest marks missing or malformed input.
var ErrInvalidRequest = errors.New("user: invalid request")

// Error carries a message that is safe to return to the caller. Err is one
// of ErrInvalidRequest, the authz errors or tenant.ErrNotMember.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return "user: " + e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Backend is the subset of the backend client the service needs.
type Backend interface {
	GetProfile(ctx context.Context, id string) (*milow.Profile, error)
	UpdateProfile(ctx context.Context, id string, u milow.ProfileUpdate) error
	DeleteProfile(ctx context.Context, id string) error
	RoleName(ctx context.Context, roleID string) (string, error)
	InviteUserByEmail(ctx context.Context, email string, params milow.InviteParams) (*milow.AuthUser, error)
	CreateUser(ctx context.Context, params milow.CreateUserParams) (*milow.AuthUser, error)
	UpdateUserPassword(ctx context.Context, id, password string) error
	DeleteUser(ctx context.Context, id string) error
	InsertCredentials(ctx context.Context, c milow.UserCredentials) error
	UpsertCredentials(ctx context.Context, c milow.UserCredentials) error
}

// InviteRequest is the body of an invitation.
type InviteRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
	RoleID   string `json:"role_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// InviteResult describes the created user.
type InviteResult struct {
	Success    bool   `json:"success"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	InviteSent bool   `json:"invite_sent"`
	Message    string `json:"message"`
}

// Service runs administrative user operations on behalf of the caller
// identified by milow.UserIDFromContext.
type Service struct {
	backend     Backend
	authz       *authz.Authorizer
	tenants     *tenant.Checker
	redirectURL string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	audit       *audit.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithRedirectURL sets the invitation callback URL.
func WithRedirectURL(u string) Option {
	return func(s *Service) { s.redirectURL = u }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records admin action outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit records admin actions as audit events.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// WithAuthorizer overrides the role checker built from the backend.
func WithAuthorizer(a *authz.Authorizer) Option {
	return func(s *Service) { s.authz = a }
}

// New creates a Service with the given backend.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		logger:  slog.Default(),
		metrics: metrics.New(false),
	}
	for _, o := range opts {
		o(s)
	}
	if s.authz == nil {
		s.authz = authz.New(backend)
	}
	if s.tenants == nil {
		s.tenants = tenant.New(backend)
	}
	return s
}

// Invite creates a user in the caller's company. It first tries the
// invitation email flow and falls back to creating a confirmed user when
// the invitation is refused, for example because the email is taken by a
// pending invite.
func (s *Service) Invite(ctx context.Context, req InviteRequest) (res *InviteResult, err error) {
	caller, err := s.require(ctx, MsgInviteForbidden, authz.RoleAdmin)
	if err != nil {
		s.record(ctx, audit.ActionInviteUser, req.Email, err)
		return nil, err
	}
	defer func() { s.record(ctx, audit.ActionInviteUser, req.Email, err) }()

	if req.Email == "" || req.Password == "" {
		return nil, &Error{Message: MsgEmailPasswordRequired, Err: ErrInvalidRequest}
	}

	roleName := authz.RolePending
	if req.RoleID != "" {
		if name, err := s.backend.RoleName(ctx, req.RoleID); err == nil && name != "" {
			roleName = name
		} else if err != nil {
			s.logger.WarnContext(ctx, "role lookup failed, using pending", "role_id", req.RoleID, "error", err)
		}
	}

	companyName := caller.CompanyName
	if companyName == "" {
		companyName = DefaultCompanyName
	}

	res = &InviteResult{Success: true, InviteSent: true, Message: "Invitation email sent via Supabase."}
	u, err := s.backend.InviteUserByEmail(ctx, req.Email, milow.InviteParams{
		Data: map[string]any{
			"full_name":     req.FullName,
			"temp_password": req.Password,
			"company_name":  companyName,
		},
		RedirectTo: s.redirectURL,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "invite failed, creating user directly", "error", err)
		u, err = s.backend.CreateUser(ctx, milow.CreateUserParams{
			Email:        req.Email,
			Password:     req.Password,
			EmailConfirm: true,
			UserMetadata: map[string]any{"full_name": req.FullName},
		})
		if err != nil {
			return nil, fmt.Errorf("user: create user: %w", err)
		}
		res.InviteSent = false
		res.Message = "User created. Share password manually."
	}
	res.UserID, res.Email = u.ID, u.Email

	err = s.backend.UpdateProfile(ctx, u.ID, milow.ProfileUpdate{
		CompanyID:  caller.CompanyID,
		RoleID:     req.RoleID,
		FullName:   req.FullName,
		Role:       roleName,
		IsVerified: true,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "profile update after invite failed", "user_id", u.ID, "error", err)
	}

	if req.Username != "" {
		err = s.backend.InsertCredentials(ctx, milow.UserCredentials{
			ProfileID:          u.ID,
			GeneratedUsername:  req.Username,
			MustChangePassword: true,
			CreatedBy:          caller.ID,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "storing credentials failed", "user_id", u.ID, "error", err)
		}
	}
	return res, nil
}

// Delete removes a user's profile and auth account. A profile deletion
// failure is logged and the auth account is still removed.
func (s *Service) Delete(ctx context.Context, userID string) (err error) {
	if _, err = s.require(ctx, MsgDeleteForbidden, authz.RoleAdmin, authz.RoleSuperAdmin); err != nil {
		s.record(ctx, audit.ActionDeleteUser, userID, err)
		return err
	}
	defer func() { s.record(ctx, audit.ActionDeleteUser, userID, err) }()

	if userID == "" {
		return &Error{Message: MsgUserIDRequired, Err: ErrInvalidRequest}
	}

	if err := s.backend.DeleteProfile(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "deleting profile failed, continuing to auth delete", "user_id", userID, "error", err)
	}
	if err := s.backend.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("user: delete user: %w", err)
	}
	return nil
}

// ResetPassword sets a new password for a user in the caller's company and
// flags that it must be changed at next sign-in.
func (s *Service) ResetPassword(ctx context.Context, userID, newPassword string) (err error) {
	caller, err := s.require(ctx, MsgResetForbidden, authz.RoleAdmin)
	if err != nil {
		s.record(ctx, audit.ActionResetPassword, userID, err)
		return err
	}
	defer func() { s.record(ctx, audit.ActionResetPassword, userID, err) }()

	if userID == "" || newPassword == "" {
		return &Error{Message: MsgResetFieldsRequired, Err: ErrInvalidRequest}
	}

	if err := s.tenants.RequireMember(ctx, caller.CompanyID, userID); err != nil {
		if errors.Is(err, tenant.ErrNotMember) {
			return &Error{Message: MsgNotInCompany, Err: err}
		}
		return err
	}

	if err := s.backend.UpdateUserPassword(ctx, userID, newPassword); err != nil {
		return fmt.Errorf("user: update password: %w", err)
	}

	err = s.backend.UpsertCredentials(ctx, milow.UserCredentials{
		ProfileID:          userID,
		MustChangePassword: true,
		CreatedBy:          caller.ID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "flagging password change failed", "user_id", userID, "error", err)
	}
	return nil
}

// require checks the caller's role and converts authz failures into
// caller-facing errors. forbidden is the message used for a wrong role.
func (s *Service) require(ctx context.Context, forbidden string, roles ...string) (*milow.Profile, error) {
	p, err := s.authz.Require(ctx, roles...)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, authz.ErrUnauthenticated):
		return nil, &Error{Message: MsgUnauthorized, Err: err}
	case errors.Is(err, authz.ErrProfileNotFound):
		return nil, &Error{Message: MsgProfileNotFound, Err: err}
	case errors.Is(err, authz.ErrForbidden):
		return nil, &Error{Message: forbidden, Err: err}
	default:
		return nil, fmt.Errorf("user: %w", err)
	}
}

func (s *Service) record(ctx context.Context, action, target string, err error) {
	result := "success"
	denied := errors.Is(err, authz.ErrForbidden) || errors.Is(err, authz.ErrProfileNotFound) ||
		errors.Is(err, authz.ErrUnauthenticated) || errors.Is(err, tenant.ErrNotMember)
	switch {
	case denied:
		result = "denied"
	case err != nil:
		result = "failure"
	}
	s.metrics.RecordAdminAction(action, result)
	if s.audit != nil {
		s.audit.LogAdmin(ctx, action, milow.UserIDFromContext(ctx), target, denied, err)
	}
}
