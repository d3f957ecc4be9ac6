package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nhle/taskpulse/internal/model"
)

// GetUser fetches the profile for email.
func (c *Client) GetUser(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	path := "/users/" + url.PathEscape(email)
	if err := c.get(ctx, path, &user); err != nil {
		return nil, fmt.Errorf("getting user %s: %w", email, err)
	}
	if user.Email == "" {
		user.Email = email
	}
	return &user, nil
}

// NonAdminUsers lists the users a task can be assigned to.
func (c *Client) NonAdminUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.get(ctx, "/users/non-admin", &users); err != nil {
		return nil, fmt.Errorf("listing assignable users: %w", err)
	}
	return users, nil
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Pwd   string `json:"pwd"`
}

// Register creates an account. Inputs are trimmed before sending.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	req := registerRequest{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
		Pwd:   strings.TrimSpace(password),
	}
	if err := c.post(ctx, "/users/register", req, nil); err != nil {
		return fmt.Errorf("registering %s: %w", req.Email, err)
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials. The raw response body is returned so the
// session can keep whatever user data the server sends back.
func (c *Client) Login(ctx context.Context, email, password string) (json.RawMessage, error) {
	req := loginRequest{
		Email:    strings.TrimSpace(email),
		Password: strings.TrimSpace(password),
	}
	var data json.RawMessage
	if err := c.post(ctx, "/users/login", req, &data); err != nil {
		return nil, fmt.Errorf("logging in %s: %w", req.Email, err)
	}
	return data, nil
}

type updateRoleRequest struct {
	Email    string     `json:"email"`
	UserRole model.Role `json:"userRole"`
}

// UpdateRole sets the role chosen after registration.
func (c *Client) UpdateRole(ctx context.Context, email string, role model.Role) error {
	req := updateRoleRequest{Email: email, UserRole: role}
	if err := c.post(ctx, "/users/update-role", req, nil); err != nil {
		return fmt.Errorf("updating role for %s: %w", email, err)
	}
	return nil
}

// UpdateProfile changes the display name of email.
func (c *Client) UpdateProfile(ctx context.Context, email, name string) error {
	body := map[string]string{"name": strings.TrimSpace(name)}
	path := "/users/update/" + url.PathEscape(email)
	if err := c.put(ctx, path, body, nil); err != nil {
		return fmt.Errorf("updating profile for %s: %w", email, err)
	}
	return nil
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces the account password. The server answers with
// a confirmation line which is returned as-is.
func (c *Client) ChangePassword(ctx context.Context, email, current, next string) (string, error) {
	req := changePasswordRequest{CurrentPassword: current, NewPassword: next}
	path := "/users/change-password/" + url.PathEscape(email)

	var msg string
	if err := c.put(ctx, path, req, &msg); err != nil {
		return "", fmt.Errorf("changing password for %s: %w", email, err)
	}
	return msg, nil
}
