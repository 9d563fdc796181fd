package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrSongNotFound       = fmt.Errorf("song not found")
	ErrControllerClosed   = fmt.Errorf("toggle controller closed")

	// Remote error kinds. Every [APIError] unwraps to exactly one of these.
	ErrNetwork      = fmt.Errorf("network error")
	ErrAuthRequired = fmt.Errorf("authentication required")
	ErrValidation   = fmt.Errorf("validation error")
	ErrServer       = fmt.Errorf("server error")
	ErrNotFound     = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ErrorKind classifies a failed remote call.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindAuthRequired
	KindValidation
	KindServer
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthRequired:
		return "auth_required"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuthRequired:
		return ErrAuthRequired
	case KindValidation:
		return ErrValidation
	case KindServer:
		return ErrServer
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrNetwork
	}
}

// APIError describes a failed call to the remote API.
//
// StatusCode is zero when the request never produced a response.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

// NewAPIError builds an [APIError] of the given kind.
func NewAPIError(kind ErrorKind, status int, message string, err error) *APIError {
	return &APIError{Kind: kind, StatusCode: status, Message: message, Err: err}
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %s", e.Kind.sentinel(), e.StatusCode, msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind.sentinel(), msg)
}

// Unwrap exposes both the kind sentinel and the underlying cause to [errors.Is].
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// Retryable reports whether repeating the same call may succeed.
func (e *APIError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// KindOf returns the [ErrorKind] of err, and false when err carries none.
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// KindForStatus maps an HTTP status code to an [ErrorKind].
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuthRequired
	case status == 404:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// UserMessage renders err as short text suitable for a status line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	kind, ok := KindOf(err)
	if !ok {
		return err.Error()
	}
	switch kind {
	case KindNetwork:
		return "Network unavailable, please try again"
	case KindAuthRequired:
		return "Sign in to do that"
	case KindValidation:
		return "That request was rejected"
	case KindNotFound:
		return "Song not found"
	default:
		return "Server error, please try again"
	}
}
