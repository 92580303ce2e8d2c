package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and transport errors
	ErrAPIRequest  = fmt.Errorf("API request failed")
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrTransport   = fmt.Errorf("transport failure")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// FailureKind identifies which branch of the failure taxonomy an error belongs to.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindAuthentication
	KindRateLimited
	KindRemote
	KindTransport
)

func (k FailureKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimited:
		return "rate_limited"
	case KindRemote:
		return "remote"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// KindOf reports the [FailureKind] of err, looking through wrapped errors.
func KindOf(err error) FailureKind {
	var (
		authErr      *AuthError
		rateErr      *RateLimitError
		remoteErr    *RemoteError
		transportErr *TransportError
	)

	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &rateErr):
		return KindRateLimited
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}

// AuthError is a missing, invalid, or expired credential, including a refresh with no refresh token.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return ErrAuthFailed.Error()
	}
	return fmt.Sprintf("%v: %s", ErrAuthFailed, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

// RateLimitError is a 429 response. RetryAfter is zero when the server sent no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RemoteError is any other non-2xx response. Body is kept verbatim for diagnostics.
type RemoteError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrAPIRequest, e.Status, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrAPIRequest }

// TransportError means no response was received (DNS, connection, timeout).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
