// Package apperrors is the error taxonomy shared by the identity service and
// the HTTP handlers. Every failure a client can cause maps to one Kind, and
// every Kind maps to one HTTP status.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Skryldev/storefront/db"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindAuthentication     Kind = "AUTHENTICATION"
	KindIntegrity          Kind = "INTEGRITY"
	KindInternal           Kind = "INTERNAL"
)

// FieldError is one violated field of a validation failure. Field is the
// JSON path of the input, e.g. "orderItems[1].quantity".
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same Kind, so errors.Is(err,
// &Error{Kind: KindNotFound}) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Validation reports every violated field at once.
func Validation(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, Cause: cause}
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
}

// Authentication keeps the verifier's message so clients can tell an
// expired token from a malformed one.
func Authentication(cause error) *Error {
	msg := "authentication required"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: KindAuthentication, Message: msg, Cause: cause}
}

func Integrity(message string, cause error) *Error {
	return &Error{Kind: KindIntegrity, Message: message, Cause: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Cause: cause}
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindIntegrity:
		return http.StatusConflict
	case KindInvalidCredentials, KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FromStore translates an error coming out of a repository. resource names
// the entity for NotFound messages ("category", "order", ...). Errors that
// already carry a Kind pass through unchanged.
func FromStore(err error, resource string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case db.IsNotFound(err):
		nf := NotFound(resource)
		nf.Cause = err
		return nf
	case db.IsDuplicateKey(err):
		return Conflict(resource+" already exists", err)
	case db.IsForeignKeyViolation(err):
		return Integrity(resource+" references a missing record or is still referenced", err)
	case db.IsCheckViolation(err):
		return Integrity(resource+" violates a data constraint", err)
	default:
		return Internal(err)
	}
}
