// Package apperr holds the error kinds shared by the domain packages and the
// HTTP layer. Domain packages declare their own sentinels built from these
// kinds and the API maps each kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrRuleViolation    = errors.New("business rule violation")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrConflict         = errors.New("conflict")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Error carries a human readable detail plus the kind it belongs to.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Validation(detail string) *Error       { return newError(ErrValidation, detail) }
func Violation(detail string) *Error        { return newError(ErrRuleViolation, detail) }
func NotFound(detail string) *Error         { return newError(ErrNotFound, detail) }
func Forbidden(detail string) *Error        { return newError(ErrForbidden, detail) }
func Unauthenticated(detail string) *Error  { return newError(ErrUnauthenticated, detail) }
func Conflict(detail string) *Error         { return newError(ErrConflict, detail) }
func MethodNotAllowed(detail string) *Error { return newError(ErrMethodNotAllowed, detail) }

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// Violationf is Violation with formatting.
func Violationf(format string, args ...any) *Error {
	return Violation(fmt.Sprintf(format, args...))
}

// Detail returns the client facing message of err when it is an *Error.
func Detail(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail, true
	}
	return "", false
}
