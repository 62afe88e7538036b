// Package apperr defines the error taxonomy shared by services, middleware
// and handlers.  Every failure that reaches a client is an *Error whose Kind
// decides the HTTP status; the wrapped cause is only ever logged.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidationFailed
	KindInvalidCredentials
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindDuplicateEmail
	KindInvalidOperation
	KindInvalidToken
	KindTooManyRequests
)

var kindNames = map[Kind]string{
	KindInternal:           "Internal",
	KindValidationFailed:   "ValidationFailed",
	KindInvalidCredentials: "InvalidCredentials",
	KindUnauthorized:       "Unauthorized",
	KindForbidden:          "Forbidden",
	KindNotFound:           "NotFound",
	KindDuplicateEmail:     "DuplicateEmail",
	KindInvalidOperation:   "InvalidOperation",
	KindInvalidToken:       "InvalidToken",
	KindTooManyRequests:    "TooManyRequests",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidationFailed, KindDuplicateEmail, KindInvalidOperation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindUnauthorized, KindInvalidToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified, client-safe error.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, ErrForbidden)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is comparisons.
var (
	ErrValidationFailed   = &Error{Kind: KindValidationFailed}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDuplicateEmail     = &Error{Kind: KindDuplicateEmail}
	ErrInvalidOperation   = &Error{Kind: KindInvalidOperation}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Validation builds a ValidationFailed error carrying field details.
func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidationFailed, Message: "Validation failed", Fields: fields}
}

func InvalidCredentials() *Error {
	return New(KindInvalidCredentials, "Invalid email or password")
}

func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func DuplicateEmail() *Error {
	return New(KindDuplicateEmail, "User with this email already exists")
}

func InvalidOperation(msg string) *Error { return New(KindInvalidOperation, msg) }

func InvalidToken() *Error {
	return New(KindInvalidToken, "Invalid or expired refresh token")
}

// Internal wraps an unexpected failure.  The message shown to clients is fixed.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Something went wrong", Err: err}
}

// From converts any error into an *Error, treating unclassified errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf returns the kind of err, KindInternal when unclassified.
func KindOf(err error) Kind {
	return From(err).Kind
}
