// Package session holds who is logged in. A Session is created once at
// startup, restored from persisted storage, and passed explicitly to
// everything that needs the viewer's identity.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nhle/taskpulse/internal/credential"
	"github.com/nhle/taskpulse/internal/model"
)

// storageKey is where the session is persisted.
const storageKey = "session"

// Persister stores the serialized session.
type Persister interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Authenticator is the part of the API the session needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (json.RawMessage, error)
	GetUser(ctx context.Context, email string) (*model.User, error)
}

// ErrNotLoggedIn is returned by operations that need a logged-in session.
var ErrNotLoggedIn = errors.New("not logged in")

// Data is the persisted session object.
type Data struct {
	Email      string          `json:"email"`
	Name       string          `json:"name"`
	IsLoggedIn bool            `json:"isLoggedIn"`
	UserRole   model.Role      `json:"userRole"`
	UserData   json.RawMessage `json:"userData,omitempty"`
}

// Session is the explicit session context.
type Session struct {
	store Persister

	mu   sync.RWMutex
	data Data
}

// New returns a logged-out session persisted through store (may be nil).
func New(store Persister) *Session {
	return &Session{store: store}
}

// Load restores the persisted session, if any. A missing entry leaves the
// session logged out; any other storage failure is returned.
func (s *Session) Load() error {
	if s.store == nil {
		return nil
	}
	raw, err := s.store.Get(storageKey)
	if credential.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading stored session: %w", err)
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decoding stored session: %w", err)
	}
	if d.Email == "" {
		d.IsLoggedIn = false
	}

	s.mu.Lock()
	s.data = d
	s.mu.Unlock()
	return nil
}

// Login verifies credentials, fetches the profile and persists the
// result.
func (s *Session) Login(ctx context.Context, auth Authenticator, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return errors.New("email and password cannot be empty")
	}

	userData, err := auth.Login(ctx, email, password)
	if err != nil {
		return err
	}

	d := Data{Email: email, IsLoggedIn: true, UserData: userData, UserRole: model.RoleEmployee}
	if user, err := auth.GetUser(ctx, email); err == nil {
		d.Name = user.Name
		d.UserRole = model.ParseRole(string(user.UserRole))
	}

	return s.Set(d)
}

// Set replaces the session and persists it.
func (s *Session) Set(d Data) error {
	s.mu.Lock()
	s.data = d
	s.mu.Unlock()
	return s.persist(d)
}

// SetRole records a role change and persists it.
func (s *Session) SetRole(role model.Role) error {
	s.mu.Lock()
	s.data.UserRole = role
	d := s.data
	s.mu.Unlock()
	return s.persist(d)
}

// Logout clears the session in memory and in storage.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.data = Data{}
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(storageKey); err != nil {
		return fmt.Errorf("clearing stored session: %w", err)
	}
	return nil
}

func (s *Session) persist(d Data) error {
	if s.store == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.store.Set(storageKey, raw); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Data returns a copy of the session object.
func (s *Session) Data() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Email returns the viewer's email, or "" when logged out.
func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Email
}

// Role returns the viewer's role.
func (s *Session) Role() model.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.UserRole
}

// LoggedIn reports whether a user is logged in.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.IsLoggedIn && s.data.Email != ""
}
