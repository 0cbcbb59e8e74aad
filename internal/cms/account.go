package cms

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/keithlinneman/storefront/internal/xerrors"
)

// Login exchanges an identifier (username or email) and password for a CMS
// bearer token. Rejected credentials and incomplete responses both yield
// ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	var resp struct {
		JWT  string `json:"jwt"`
		User *User  `json:"user"`
	}
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/local",
		body:      map[string]string{"identifier": identifier, "password": password},
		anonymous: true,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, xerrors.Wrap(err, "cms login")
	}
	if resp.JWT == "" || resp.User == nil || resp.User.ID == 0 {
		return Session{}, ErrInvalidCredentials
	}
	return Session{Token: resp.JWT, User: *resp.User}, nil
}

// ProfileUpdate holds the user-editable profile fields. Empty fields are left unchanged.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UpdateProfile writes p to the user record and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, token string, userID int, p ProfileUpdate) (User, error) {
	if token == "" {
		return User{}, ErrUnauthorized
	}
	p.Username = strings.TrimSpace(p.Username)
	p.Email = strings.TrimSpace(p.Email)
	if p.Username == "" && p.Email == "" {
		return User{}, xerrors.New("profile update has no fields")
	}

	var out User
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/users/" + strconv.Itoa(userID),
		body:   p,
		token:  token,
	}, &out)
	if err != nil {
		return User{}, xerrors.Wrapf(err, "update profile for user %d", userID)
	}
	return out, nil
}

// ChangePassword asks the CMS to replace the caller's password. A CMS rejection
// comes back as *APIError so the status can be passed through to the caller.
func (c *Client) ChangePassword(ctx context.Context, token, current, next, confirm string) error {
	if token == "" {
		return ErrUnauthorized
	}
	if current == "" || next == "" || confirm == "" {
		return xerrors.New("current password, new password and confirmation are required")
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/change-password",
		body: map[string]string{
			"currentPassword":      current,
			"password":             next,
			"passwordConfirmation": confirm,
		},
		token: token,
	}, nil)
	if err != nil {
		return xerrors.Wrap(err, "change password")
	}
	return nil
}
