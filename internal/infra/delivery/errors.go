package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrReauthorizationRequired means the stored credential is gone, revoked or
// rejected and cannot be refreshed silently. An operator has to authorize
// the sender again; no send will succeed until then.
var ErrReauthorizationRequired = errors.New("delivery credential requires reauthorization")

// ErrNoCredential means nothing has been authorized yet. It matches
// ErrReauthorizationRequired under errors.Is.
var ErrNoCredential = fmt.Errorf("%w: no stored credential", ErrReauthorizationRequired)

// ErrorClass is the closed set of delivery failure kinds.
type ErrorClass int

const (
	ClassOther     ErrorClass = iota // not retryable, not credential related
	ClassRetryable                   // rate limit, timeout, 5xx, network
	ClassFatal                       // credential rejected, stop sending
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	}
	return "other"
}

// ProviderError is an HTTP-level rejection by the mail provider.
type ProviderError struct {
	StatusCode int
	Reason     string // provider error code, e.g. rateLimitExceeded
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Reason != "" {
		return fmt.Sprintf("provider status %d (%s): %s", e.StatusCode, e.Reason, msg)
	}
	return fmt.Sprintf("provider status %d: %s", e.StatusCode, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// rateLimitReasons arrive with 403 but are throttling, not auth failures.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// Classify maps an error from a send or credential refresh to its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOther
	}
	if errors.Is(err, ErrReauthorizationRequired) {
		return ClassFatal
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == 403 && rateLimitReasons[pe.Reason]:
			return ClassRetryable
		case pe.StatusCode == 401 || pe.StatusCode == 403:
			return ClassFatal
		case pe.StatusCode == 408 || pe.StatusCode == 429 || pe.StatusCode >= 500:
			return ClassRetryable
		}
		return ClassOther
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ClassOther
	case errors.Is(err, context.DeadlineExceeded):
		return ClassRetryable
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, io.ErrUnexpectedEOF):
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	return ClassOther
}

// DeliveryError is what Client.Send returns once it gives up.
type DeliveryError struct {
	Class    ErrorClass
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempt(s) (%s): %v", e.Attempts, e.Class, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is lets callers test any fatal failure against ErrReauthorizationRequired,
// including a provider 401 that never wrapped the sentinel itself.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrReauthorizationRequired && e.Class == ClassFatal
}
