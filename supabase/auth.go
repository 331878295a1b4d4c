package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	milow "github.com/milow-app/milow-functions"
)

// GetUser resolves the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*milow.AuthUser, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	var u milow.AuthUser
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		apiKey: c.anonKey,
		bearer: accessToken,
	}, &u)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if u.ID == "" {
		return nil, ErrUnauthorized
	}
	return &u, nil
}

// Verify implements milow.TokenVerifier by asking the backend who owns the token.
func (c *Client) Verify(ctx context.Context, token string) (*milow.Claims, error) {
	u, err := c.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &milow.Claims{
		Subject: u.ID,
		Email:   u.Email,
		Role:    u.Role,
		Extra:   u.UserMetadata,
	}, nil
}

// InviteUserByEmail sends an invitation email and creates the pending user.
func (c *Client) InviteUserByEmail(ctx context.Context, email string, params milow.InviteParams) (*milow.AuthUser, error) {
	var q url.Values
	if params.RedirectTo != "" {
		q = url.Values{"redirect_to": {params.RedirectTo}}
	}
	var u milow.AuthUser
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/invite",
		query:  q,
		body: map[string]any{
			"email": email,
			"data":  params.Data,
		},
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser creates a user directly, bypassing the invitation flow.
func (c *Client) CreateUser(ctx context.Context, params milow.CreateUserParams) (*milow.AuthUser, error) {
	var u milow.AuthUser
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/admin/users",
		body: map[string]any{
			"email":         params.Email,
			"password":      params.Password,
			"email_confirm": params.EmailConfirm,
			"user_metadata": params.UserMetadata,
		},
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserPassword sets a new password for the user.
func (c *Client) UpdateUserPassword(ctx context.Context, id, password string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/admin/users/" + url.PathEscape(id),
		body:   map[string]string{"password": password},
	}, nil)
}

// DeleteUser removes the auth user.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/auth/v1/admin/users/" + url.PathEscape(id),
	}, nil)
}

var _ milow.TokenVerifier = (*Client)(nil)
