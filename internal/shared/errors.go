package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a business rule or input validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or idempotency conflict.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// UserError pairs a classification error with a message safe for display.
type UserError struct {
	Err     error
	Message string
}

func (e *UserError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *UserError) Unwrap() error { return e.Err }

// NewUserError wraps kind with a formatted display message.
func NewUserError(kind error, format string, args ...any) error {
	return &UserError{Err: kind, Message: fmt.Sprintf(format, args...)}
}

// UserSafeMessage returns the display message carried by err, or a generic
// message when err carries none.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrConflict):
		return "The record conflicts with an existing one."
	case errors.Is(err, ErrValidation):
		return "The request is invalid."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action."
	}
	return "Something went wrong. Please try again."
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrForbidden)
}
