package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown ids, unknown codes and links owned by someone else.
	ErrNotFound = errors.New("link not found")
	// ErrCodeExhausted means every length up to the maximum produced only taken codes.
	ErrCodeExhausted = errors.New("short code space exhausted")
	// ErrCodeConflict means inserts kept losing unique-constraint races.
	ErrCodeConflict = errors.New("short code conflict")
	// ErrUnsafeTarget means a stored destination is no longer a valid http(s) URL.
	ErrUnsafeTarget = errors.New("link target is not a valid http(s) url")
	// ErrUnauthorized covers missing, malformed, expired and revoked credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when the username or email is already registered.
	ErrUserExists = errors.New("username or email already exists")
)

// ValidationError rejects caller input before any store or cache access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StoreError wraps a durable-store failure. Its message is safe to show callers;
// the wrapped error carries the detail for logs.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "storage unavailable"
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
