// Package domainerrors defines coded errors shared by services and the HTTP
// adapter. Services wrap store failures into coded errors; the adapter maps
// codes to HTTP statuses and never leaks internal error text to callers.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	// CodeBlacklisted marks a signup rejected by the blacklist screener.
	CodeBlacklisted Code = "blacklisted"
	// CodePoolExhausted marks a signup that requested auto-assignment when
	// no reserved account was available.
	CodePoolExhausted Code = "pool_exhausted"
	// CodeConflict marks a caller-visible uniqueness conflict, e.g. a
	// duplicate username.
	CodeConflict Code = "conflict"
	// CodeCodeExhausted marks referral-code generation giving up after the
	// bounded retry budget. Treated as an internal fault.
	CodeCodeExhausted Code = "code_exhausted"
	// CodeNotFound marks an identifier that resolved to no user.
	CodeNotFound Code = "not_found"
	// CodeBadRequest marks malformed or missing caller input.
	CodeBadRequest Code = "bad_request"
	// CodeTimeout marks a cancelled or deadline-exceeded unit of work.
	CodeTimeout Code = "timeout"
	// CodeInternal marks everything else. Its message is never surfaced.
	CodeInternal Code = "internal_error"
)

// Error carries a code, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with a caller-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message for err. Internal errors always
// report a generic message regardless of what they wrap.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != CodeInternal {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a domain error code to an HTTP status for the adapter.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBlacklisted:
		return http.StatusForbidden
	case CodePoolExhausted:
		return http.StatusConflict
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCodeExhausted, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
