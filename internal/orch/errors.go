// Package orch runs the per-record submission state machine over a
// browser session, producing exactly one audit row per source record.
package orch

import (
	"context"
	"errors"

	"github.com/sbrops/groundcheck-cli/internal/driver"
)

// Kind classifies a record-level or run-level failure.
type Kind int

// Failure kinds, from most specific to least.
const (
	KindUnknown Kind = iota
	KindTimeout
	KindIdleTimeout
	KindLoginFailure
	KindRateLimited
	KindSubmission
	KindCancelled
	KindDriverFatal
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindIdleTimeout:
		return "idle_timeout"
	case KindLoginFailure:
		return "login_failure"
	case KindRateLimited:
		return "rate_limited"
	case KindSubmission:
		return "submission"
	case KindCancelled:
		return "cancelled"
	case KindDriverFatal:
		return "driver_fatal"
	}
	return "unknown"
}

// RecordError wraps an underlying error with its failure kind.
type RecordError struct {
	Kind Kind
	Err  error
}

func (e *RecordError) Error() string { return e.Kind.String() + ": " + e.Err.Error() }
func (e *RecordError) Unwrap() error { return e.Err }

// ErrIdleTimeout is the cancellation cause set by the idle watchdog.
var ErrIdleTimeout = errors.New("orch: idle timeout reached")

// KindOf resolves the failure kind of an arbitrary error.
func KindOf(err error) Kind {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Kind
	}
	switch {
	case errors.Is(err, ErrIdleTimeout):
		return KindIdleTimeout
	case errors.Is(err, driver.ErrFilterThrottled):
		return KindRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindUnknown
}
