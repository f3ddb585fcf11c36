// Package common defines shared constants and sentinel errors used across
// the store, service and transport layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrTransientStore = errors.New("credential store unavailable")

	// Service-level errors. Their messages are shown to the user.
	ErrValidation         = errors.New("missing required fields")
	ErrAccountExists      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Token errors (invalid signature, malformed payload, expiry).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError is a user-correctable input problem. It matches
// ErrValidation under errors.Is while carrying its own message.
type ValidationError struct {
	Msg string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
