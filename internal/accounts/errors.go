package accounts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-directory/internal/authz"
)

var (
	// ErrNotFound indicates a missing user or employee.
	ErrNotFound = errors.New("accounts: not found")
	// ErrInvalidInput indicates a malformed request detected before evaluation.
	ErrInvalidInput = fmt.Errorf("accounts: %w", authz.ErrInvalidInput)
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("accounts: email already registered")
	// ErrInvalidState indicates the signup is no longer awaiting a decision.
	ErrInvalidState = errors.New("accounts: signup already decided")
	// ErrAlreadyResigned indicates the employee has already resigned.
	ErrAlreadyResigned = errors.New("accounts: employee already resigned")
	// ErrUnauthenticated indicates no actor is attached to the request.
	ErrUnauthenticated = errors.New("accounts: unauthenticated")
	// ErrForbidden indicates a route guard refused the actor.
	ErrForbidden = errors.New("accounts: forbidden")
)

// ForbiddenError is returned by guarded operations and names where the
// actor should be sent instead.
type ForbiddenError struct {
	Redirect string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("accounts: forbidden, redirect to %s", e.Redirect)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// DeniedError carries every authorization denial recorded for a request.
type DeniedError struct {
	Errors authz.FieldErrors
}

func (e *DeniedError) Error() string {
	return "accounts: authorization denied: " + strings.Join(e.Errors.Fields(), ", ")
}

// InputError carries field-level validation failures.
type InputError struct {
	Errors authz.FieldErrors
}

func (e *InputError) Error() string {
	return "accounts: invalid input: " + strings.Join(e.Errors.Fields(), ", ")
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func fieldError(field, message string) *InputError {
	errs := authz.FieldErrors{}
	errs.AddError(field, message)
	return &InputError{Errors: errs}
}
