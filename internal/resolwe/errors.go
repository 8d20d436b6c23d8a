package resolwe

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is matched by errors.Is when the server rejected the login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrServerUnreachable is matched by errors.Is when the server could not be reached
	// or the URL is malformed.
	ErrServerUnreachable = errors.New("server unreachable")
)

// CredentialsError reports a rejected login. Its message is meant for end users.
type CredentialsError struct {
	StatusCode int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("Response HTTP status code %d. Invalid credentials?", e.StatusCode)
}

// Is reports whether target is ErrInvalidCredentials.
func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// ServerError reports that the server at URL could not be reached.
// Its message is meant for end users.
type ServerError struct {
	URL string
	Err error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Server not accessible on %s. Wrong url?", e.URL)
}

// Is reports whether target is ErrServerUnreachable.
func (e *ServerError) Is(target error) bool {
	return target == ErrServerUnreachable
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// StatusError is returned for any other unexpected HTTP status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
