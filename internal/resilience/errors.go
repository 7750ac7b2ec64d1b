package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// retryable is implemented by client errors that know their own policy.
type retryable interface {
	Retryable() bool
}

// delayHinter is implemented by client errors carrying a server-requested
// wait, such as a Retry-After header.
type delayHinter interface {
	RetryDelay() time.Duration
}

// RetryDelayHint returns the wait the server asked for, if any.
func RetryDelayHint(err error) (time.Duration, bool) {
	var h delayHinter
	if errors.As(err, &h) {
		if d := h.RetryDelay(); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a client error whose Retryable method says so, a network
// timeout, or a reset or refused connection. Context cancellation and
// deadline expiry never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset by peer", "broken pipe", "i/o timeout", "tls handshake timeout"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	// Anthropic's overloaded status.
	return code == 529
}
