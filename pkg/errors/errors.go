// Package errors defines custom error types and error handling utilities for the realm key service.
// This package provides structured error types that map to OAuth 2.0 error codes and HTTP status codes.
package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
)

// Code is a machine readable error code.
type Code string

const (
	CodeInvalidRequest       Code = "invalid_request"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeInvalidToken         Code = "invalid_token"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
	CodeUnauthorized         Code = "unauthorized"
	CodeLoginRequired        Code = "login_required"
	CodeNotFound             Code = "not_found"
	CodeServerError          Code = "server_error"
	CodeRateLimited          Code = "too_many_requests"

	// Key registry and verification codes. These never leave the process:
	// handlers collapse them into CodeInvalidToken / CodeInvalidGrant.
	CodeNoActiveKey     Code = "no_active_key"
	CodeUnknownKey      Code = "unknown_key"
	CodeBadSignature    Code = "bad_signature"
	CodeMalformedHeader Code = "malformed_header"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// CBCError represents a structured error with additional metadata
type CBCError interface {
	error

	// Code returns the error code
	Code() Code

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description safe to show to clients
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause returns a copy of the error carrying cause
	WithCause(cause error) CBCError

	// WithMetadata returns a copy of the error with an extra metadata entry
	WithMetadata(key string, value interface{}) CBCError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() Code          { return e.code }
func (e *baseError) HTTPStatus() int     { return e.httpStatus }
func (e *baseError) Description() string { return e.description }
func (e *baseError) Unwrap() error       { return e.cause }

// Is reports whether target carries the same code. It lets callers match
// sentinels with errors.Is after causes or metadata were attached.
func (e *baseError) Is(target error) bool {
	var t *baseError
	if !goerrors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

func (e *baseError) clone() *baseError {
	cp := *e
	cp.metadata = make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		cp.metadata[k] = v
	}
	return &cp
}

// WithCause returns a copy of the error carrying cause.
func (e *baseError) WithCause(cause error) CBCError {
	cp := e.clone()
	cp.cause = cause
	return cp
}

// WithMetadata returns a copy of the error with an extra metadata entry.
func (e *baseError) WithMetadata(key string, value interface{}) CBCError {
	cp := e.clone()
	cp.metadata[key] = value
	return cp
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// NewError creates a new CBCError with the specified parameters
func NewError(code Code, httpStatus int, description string, message string) CBCError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Key Registry Sentinels
// ================================================================================

var (
	// ErrNoActiveKey means the tenant has no signing-capable key for the algorithm.
	ErrNoActiveKey = NewError(CodeNoActiveKey, http.StatusInternalServerError,
		"No active signing key", "no active key")

	// ErrUnknownKey means the kid never existed or was removed.
	ErrUnknownKey = NewError(CodeUnknownKey, http.StatusUnauthorized,
		"Token verification failed", "unknown key")

	// ErrBadSignature means the signature did not match or the algorithm differs from the key's.
	ErrBadSignature = NewError(CodeBadSignature, http.StatusUnauthorized,
		"Token verification failed", "bad signature")

	// ErrMalformedHeader means the artifact carries no parseable key identifier.
	ErrMalformedHeader = NewError(CodeMalformedHeader, http.StatusUnauthorized,
		"Token verification failed", "malformed header")

	// ErrKeyNotFound is returned by the key store and admin surface.
	ErrKeyNotFound = NewError(CodeNotFound, http.StatusNotFound,
		"Key not found", "key not found")

	// ErrLoginRequired means the session cookie could not be trusted.
	ErrLoginRequired = NewError(CodeLoginRequired, http.StatusUnauthorized,
		"Authentication required", "login required")

	// ErrUnauthorized is returned for missing or wrong administrative credentials.
	ErrUnauthorized = NewError(CodeUnauthorized, http.StatusUnauthorized,
		"Unauthorized", "unauthorized")

	// ErrRateLimited is returned when credential attempts exceed the configured rate.
	ErrRateLimited = NewError(CodeRateLimited, http.StatusTooManyRequests,
		"Too many attempts, retry later", "rate limited")
)

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) CBCError {
	return NewError(CodeInvalidRequest, http.StatusBadRequest, message, message)
}

// ErrInvalidGrant creates an invalid_grant error
func ErrInvalidGrant(message string) CBCError {
	return NewError(CodeInvalidGrant, http.StatusBadRequest, message, message)
}

// ErrInvalidCredentials creates the invalid_grant error returned on a failed password grant.
func ErrInvalidCredentials() CBCError {
	return NewError(CodeInvalidGrant, http.StatusUnauthorized, "Invalid user credentials", "invalid user credentials")
}

// ErrInvalidToken creates an invalid_token error
func ErrInvalidToken(message string) CBCError {
	return NewError(CodeInvalidToken, http.StatusUnauthorized, message, message)
}

// ErrUnsupportedGrantType creates an unsupported_grant_type error
func ErrUnsupportedGrantType(grantType string) CBCError {
	return NewError(CodeUnsupportedGrantType, http.StatusBadRequest,
		"Unsupported grant_type", fmt.Sprintf("unsupported grant_type %q", grantType))
}

// ErrServerError creates a server_error error
func ErrServerError(message string) CBCError {
	return NewError(CodeServerError, http.StatusInternalServerError, "Internal server error", message)
}

// ================================================================================
// Helpers
// ================================================================================

// AsCBCError unwraps err into a CBCError if possible.
func AsCBCError(err error) (CBCError, bool) {
	var cbcErr CBCError
	if goerrors.As(err, &cbcErr) {
		return cbcErr, true
	}
	return nil, false
}

// IsVerificationFailure reports whether err is one of the signature verification reasons.
func IsVerificationFailure(err error) bool {
	return goerrors.Is(err, ErrUnknownKey) ||
		goerrors.Is(err, ErrBadSignature) ||
		goerrors.Is(err, ErrMalformedHeader)
}

// IsNotFoundError reports whether err is a not-found error.
func IsNotFoundError(err error) bool {
	cbcErr, ok := AsCBCError(err)
	return ok && cbcErr.Code() == CodeNotFound
}

// WrapError wraps an arbitrary error as a server_error unless it already is a CBCError.
func WrapError(err error, message string) CBCError {
	if err == nil {
		return nil
	}
	if cbcErr, ok := AsCBCError(err); ok {
		return cbcErr
	}
	return ErrServerError(message).WithCause(err)
}
