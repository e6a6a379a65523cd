package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies failures of the external generation service. Callers
// handle every kind the same way; the kind is shown to the user as a hint.
type ErrorKind int

const (
	ErrUnknown        ErrorKind = iota
	ErrAuthentication           // 401/403, invalid key
	ErrRateLimit                // 429, quota exhausted
	ErrNetwork                  // transport failure, cancelled call
	ErrInvalidRequest           // 400/404, malformed model id
	ErrServer                   // 500+
)

var errorKindNames = [...]string{
	ErrUnknown:        "unknown",
	ErrAuthentication: "authentication",
	ErrRateLimit:      "rate_limit",
	ErrNetwork:        "network",
	ErrInvalidRequest: "invalid_request",
	ErrServer:         "server",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// Error is returned for any failed call to the external service. Message carries
// the provider's own text for display.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("external service [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError returns err as *Error, classifying it by message when it is not one
// already.
func AsError(provider string, err error) *Error {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	return &Error{
		Kind:     classifyMessage(err),
		Provider: provider,
		Message:  err.Error(),
		Cause:    err,
	}
}

func kindFromStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrAuthentication
	case status == 429:
		return ErrRateLimit
	case status == 400 || status == 404 || status == 422:
		return ErrInvalidRequest
	case status >= 500:
		return ErrServer
	default:
		return ErrUnknown
	}
}

func classifyMessage(err error) ErrorKind {
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return ErrNetwork
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, "401", "403", "unauthorized", "permission denied", "api key", "apikey", "authentication"):
		return ErrAuthentication
	case containsAny(lower, "429", "quota", "rate limit", "resource_exhausted", "too many requests"):
		return ErrRateLimit
	case containsAny(lower, "connection refused", "no such host", "eof", "timeout", "tls"):
		return ErrNetwork
	case containsAny(lower, "400", "404", "not found", "invalid argument", "invalid_argument", "malformed"):
		return ErrInvalidRequest
	case containsAny(lower, "500", "502", "503", "internal error", "unavailable"):
		return ErrServer
	default:
		return ErrUnknown
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
