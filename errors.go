package milow

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or malformed secret.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("milow: configuration %q: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SigningError reports a private key import or signature failure.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("milow: signing: %s: %v", e.Reason, e.Err)
	}
	return "milow: signing: " + e.Reason
}

func (e *SigningError) Unwrap() error { return e.Err }

// TransportError reports a network-level failure reaching an upstream endpoint.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("milow: transport to %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TokenExchangeError reports a non-2xx response from the token endpoint.
// Body carries the upstream response text for server-side diagnostics.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("milow: token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// VerificationError reports a non-2xx response from the attestation decode endpoint.
type VerificationError struct {
	StatusCode int
	Body       string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("milow: integrity decode returned %d: %s", e.StatusCode, e.Body)
}

// ErrNotFound is returned by backends when a requested row or user does not exist.
var ErrNotFound = errors.New("milow: not found")
