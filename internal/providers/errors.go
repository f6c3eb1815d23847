package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind classifies a backend failure for the caller's retry policy.
type FailureKind string

const (
	// FailureTransient covers timeouts, rate limits, and 5xx-equivalent
	// backend errors. Only these are retried.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers auth/config errors and content-policy
	// rejections. Retrying cannot help.
	FailurePermanent FailureKind = "permanent"
	// FailureMalformed means the backend answered but the response did not
	// match the expected shape.
	FailureMalformed FailureKind = "malformed_response"
)

// Failure wraps a backend error with its classification.
type Failure struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transient wraps err as a retryable failure.
func Transient(op string, err error) error {
	return &Failure{Kind: FailureTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(op string, err error) error {
	return &Failure{Kind: FailurePermanent, Op: op, Err: err}
}

// Malformed wraps err as a response-shape failure.
func Malformed(op string, err error) error {
	return &Failure{Kind: FailureMalformed, Op: op, Err: err}
}

// KindOf extracts the failure classification from an error chain. Errors
// that never passed through an adapter are treated as permanent.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailurePermanent
}

// IsTransient reports whether the caller should retry.
func IsTransient(err error) bool {
	return KindOf(err) == FailureTransient
}

// classifyHTTPError wraps an HTTP-level failure based on the status code.
func classifyHTTPError(op string, status int, body string) error {
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return Transient(op, err)
	default:
		return Permanent(op, err)
	}
}

// classifyTransportError wraps a transport failure. Timeouts and temporary
// network conditions are transient; anything else is permanent.
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(op, err)
	}
	if errors.Is(err, context.Canceled) {
		// Cooperative cancellation is not a backend fault; surface it
		// unclassified so the caller stops cleanly.
		return err
	}
	return Transient(op, err)
}
