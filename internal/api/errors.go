package api

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is a non-2xx response from the task service.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int

	// Message is the server-supplied "message" field when present,
	// otherwise the raw body.
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf(
		"task API error (%d) on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Message,
	)
}

// UserMessage is suitable for a toast/snackbar: the server's message when
// it sent one, a generic line otherwise.
func (e *RequestError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// AuthError indicates that the server rejected the credentials (401).
type AuthError struct {
	Path    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error on %s: %s", e.Path, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsNotFound reports whether err is a 404 from the task service.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound
}

// UserMessage extracts a short human-readable message from err, falling
// back to a generic connectivity message.
func UserMessage(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.UserMessage()
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return "Couldn't connect to server"
}
