package supabase

import (
	"context"
	"net/http"
	"net/url"

	milow "github.com/milow-app/milow-functions"
)

const profileColumns = "id,role,role_id,company_id,full_name,fcm_token,is_verified,companies(name)"

type profileRow struct {
	milow.Profile
	Companies *struct {
		Name string `json:"name"`
	} `json:"companies"`
}

// GetProfile returns the profile with id, including its company name.
func (c *Client) GetProfile(ctx context.Context, id string) (*milow.Profile, error) {
	var rows []profileRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/profiles",
		query:  url.Values{"id": {eq(id)}, "select": {profileColumns}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, milow.ErrNotFound
	}
	p := rows[0].Profile
	if rows[0].Companies != nil {
		p.CompanyName = rows[0].Companies.Name
	}
	return &p, nil
}

// UpdateProfile writes u to the profile with id.
func (c *Client) UpdateProfile(ctx context.Context, id string, u milow.ProfileUpdate) error {
	return c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/rest/v1/profiles",
		query:  url.Values{"id": {eq(id)}},
		body:   u,
		prefer: "return=minimal",
	}, nil)
}

// DeleteProfile removes the profile with id.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/rest/v1/profiles",
		query:  url.Values{"id": {eq(id)}},
		prefer: "return=minimal",
	}, nil)
}

// RoleName returns the name of the role with roleID.
func (c *Client) RoleName(ctx context.Context, roleID string) (string, error) {
	var rows []struct {
		Name string `json:"name"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/roles",
		query:  url.Values{"id": {eq(roleID)}, "select": {"name"}},
	}, &rows)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", milow.ErrNotFound
	}
	return rows[0].Name, nil
}

// ListFCMTokens returns every non-empty device token on file.
func (c *Client) ListFCMTokens(ctx context.Context) ([]string, error) {
	var rows []struct {
		FCMToken string `json:"fcm_token"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/profiles",
		query:  url.Values{"select": {"fcm_token"}, "fcm_token": {"not.is.null"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.FCMToken != "" {
			tokens = append(tokens, r.FCMToken)
		}
	}
	return tokens, nil
}

// InsertCredentials stores the generated username for a new user.
func (c *Client) InsertCredentials(ctx context.Context, cr milow.UserCredentials) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/user_credentials",
		body:   cr,
		prefer: "return=minimal",
	}, nil)
}

// UpsertCredentials inserts or merges a credentials row keyed by profile.
// An empty username leaves the stored one untouched.
func (c *Client) UpsertCredentials(ctx context.Context, cr milow.UserCredentials) error {
	row := map[string]any{
		"profile_id":           cr.ProfileID,
		"must_change_password": cr.MustChangePassword,
		"created_by":           cr.CreatedBy,
	}
	if cr.GeneratedUsername != "" {
		row["generated_username"] = cr.GeneratedUsername
	}
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/user_credentials",
		query:  url.Values{"on_conflict": {"profile_id"}},
		body:   row,
		prefer: "resolution=merge-duplicates,return=minimal",
	}, nil)
}

// InsertAnnouncement adds an entry to the in-app inbox.
func (c *Client) InsertAnnouncement(ctx context.Context, a milow.Announcement) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/announcements",
		body:   a,
		prefer: "return=minimal",
	}, nil)
}
