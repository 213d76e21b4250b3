package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrValidation is the sentinel for malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrReferentialIntegrity is the sentinel for writes that reference
	// rows which do not exist.
	ErrReferentialIntegrity = errors.New("referential integrity error")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Validationf builds an error that matches errors.Is(..., ErrValidation).
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ReferentialIntegrityf builds an error that matches
// errors.Is(..., ErrReferentialIntegrity).
func ReferentialIntegrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrReferentialIntegrity, fmt.Sprintf(format, args...))
}
