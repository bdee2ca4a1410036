package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuemby/agrilo/pkg/types"
)

// Login exchanges an email or phone number and a password for an access
// token. The backend also sets the refresh cookie.
func (c *Client) Login(ctx context.Context, identifier, password string) (*types.AuthResponse, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("identifier and password are required")
	}

	req := newForm("/auth/login", url.Values{
		"username": {identifier},
		"password": {password},
	})
	req.NoAuth = true
	return c.authenticate(ctx, req)
}

// Register creates an account and logs it in
func (c *Client) Register(ctx context.Context, reg types.Registration) (*types.AuthResponse, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	req, err := newJSON(http.MethodPost, "/auth/register", reg)
	if err != nil {
		return nil, err
	}
	req.NoAuth = true
	return c.authenticate(ctx, req)
}

// FirebaseLogin exchanges an identity provider ID token for an access token
func (c *Client) FirebaseLogin(ctx context.Context, idToken string) (*types.AuthResponse, error) {
	if idToken == "" {
		return nil, fmt.Errorf("id token is required")
	}
	req, err := newJSON(http.MethodPost, "/auth/firebase-login", map[string]string{"idToken": idToken})
	if err != nil {
		return nil, err
	}
	req.NoAuth = true
	return c.authenticate(ctx, req)
}

func (c *Client) authenticate(ctx context.Context, req *Request) (*types.AuthResponse, error) {
	var auth types.AuthResponse
	if err := c.call(ctx, req, &auth); err != nil {
		return nil, err
	}
	if auth.AccessToken == "" {
		return nil, &Error{Kind: KindUnknown, Message: "response has no access_token"}
	}
	return &auth, nil
}

// ServerLogout revokes the refresh cookie on the backend
func (c *Client) ServerLogout(ctx context.Context) error {
	return c.call(ctx, &Request{Method: http.MethodPost, Path: "/auth/logout", NoAuth: true}, nil)
}

// Me fetches the profile of the current user
func (c *Client) Me(ctx context.Context) (*types.Profile, error) {
	var profile types.Profile
	if err := c.call(ctx, newGet("/auth/me", nil), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateMe applies a partial profile update and returns the fields the
// backend sent back, for merging into the cached profile
func (c *Client) UpdateMe(ctx context.Context, update types.ProfileUpdate) (json.RawMessage, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("profile update has no fields")
	}
	req, err := newJSON(http.MethodPut, "/users/me", update)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.Body) {
		return nil, &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Message: "invalid response body"}
	}
	return json.RawMessage(resp.Body), nil
}
