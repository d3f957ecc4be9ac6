package model

import (
	"errors"
	"strings"
)

// Role is the account role assigned after registration.
type Role string

// Role values.
const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
)

// ParseRole normalizes a role string; anything unrecognized is treated
// as the unprivileged role.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleEmployee
}

// User is a profile as returned by GET /users/{email}.
type User struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	UserRole Role   `json:"userRole"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.UserRole == RoleAdmin }

// MinPasswordLength is the shortest password a user may choose.
const MinPasswordLength = 6

// Password change failures.
var (
	ErrPasswordFieldsRequired = errors.New("all password fields are required")
	ErrPasswordTooShort       = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch       = errors.New("new passwords don't match")
)

// CapitalizeName trims name and capitalizes each space-separated word,
// lowering the rest of it: "ada  LOVELACE" becomes "Ada  Lovelace".
func CapitalizeName(name string) string {
	words := strings.Split(strings.TrimSpace(name), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(strings.ToLower(w))
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

// ValidatePasswordChange checks a password change before it is sent.
func ValidatePasswordChange(current, next, confirm string) error {
	if current == "" || next == "" || confirm == "" {
		return ErrPasswordFieldsRequired
	}
	if len([]rune(next)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if next != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
