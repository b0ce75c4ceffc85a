// internal/domain/errors.go
package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every typed error below unwraps to exactly one of these, so callers
// can branch with errors.Is without inspecting status codes.
var (
	// Auth kinds.
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrDeviceCodeExpired  = errors.New("device code expired")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrAccessDenied       = errors.New("access denied by user")
	ErrNetworkFailure     = errors.New("network failure")

	// API kinds.
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrRateLimited           = errors.New("rate limited")
	ErrServerError           = errors.New("server error")
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrRequestRejected       = errors.New("request rejected")
	ErrMalformedResponse     = errors.New("malformed response")

	// Client kinds.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTimeout         = errors.New("timeout")
	ErrCancelled       = errors.New("cancelled")
)

// AuthError is returned by the device flow and token refresh.
type AuthError struct {
	Kind        error
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	msg := e.Kind.Error()
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// APIError is a failed call to the remote service, already classified.
// StatusCode is kept for diagnostics only; branch on Kind.
type APIError struct {
	Kind       error
	StatusCode int
	Code       string // "error" field of the body, if any
	Message    string
}

func (e *APIError) Error() string {
	var msg string
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("kinopub API error (HTTP %d): %s", e.StatusCode, e.Kind)
	} else {
		msg = fmt.Sprintf("kinopub API error: %s", e.Kind)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" && e.Message != e.Code {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Kind }

// ClientError is raised locally, before or around a network call.
type ClientError struct {
	Kind error
	Op   string
	Err  error
}

func (e *ClientError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidArgument builds a ClientError for a rejected parameter.
func InvalidArgument(op string, format string, args ...any) error {
	return &ClientError{Kind: ErrInvalidArgument, Op: op, Err: fmt.Errorf(format, args...)}
}

// ContextError maps a context error to ErrCancelled or ErrTimeout.
// It returns nil if err is not a context error.
func ContextError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Kind: ErrTimeout, Op: op, Err: err}
	case errors.Is(err, context.Canceled):
		return &ClientError{Kind: ErrCancelled, Op: op, Err: err}
	}
	return nil
}
