package transfer

import (
	"errors"
	"fmt"

	"github.com/systmms/secretxfer/internal/credential"
	"github.com/systmms/secretxfer/internal/retry"
)

// Kind classifies a transfer failure.
type Kind int

const (
	// KindFatal is an unexpected or unauthorized failure that was not retried.
	KindFatal Kind = iota

	// KindInvalidRequest means the request failed validation.
	KindInvalidRequest

	// KindAuthentication means a credential could not be obtained.
	KindAuthentication

	// KindSourceMissing means the source secret does not exist.
	KindSourceMissing

	// KindExhaustedRetries means transient failures outlasted the attempt budget.
	KindExhaustedRetries

	// KindDestinationWriteFailed wraps any failure of the write phase.
	KindDestinationWriteFailed

	// KindCanceled means the context ended before the transfer finished.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindAuthentication:
		return "authentication"
	case KindSourceMissing:
		return "source_missing"
	case KindExhaustedRetries:
		return "exhausted_retries"
	case KindDestinationWriteFailed:
		return "destination_write_failed"
	case KindCanceled:
		return "canceled"
	default:
		return "fatal"
	}
}

// Phase is the step of the transfer that failed.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseFetch    Phase = "fetch"
	PhaseWrite    Phase = "write"
)

// Error is returned by Orchestrator.Transfer.
//
// For KindDestinationWriteFailed, Cause holds the kind of the underlying
// write failure (authentication, exhausted retries, fatal or canceled).
type Error struct {
	Kind     Kind
	Cause    Kind
	Phase    Phase
	Store    string
	Name     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidRequest:
		return e.Err.Error()
	case KindSourceMissing:
		return fmt.Sprintf("source secret %q not found in %s", e.Name, e.Store)
	case KindDestinationWriteFailed:
		return fmt.Sprintf("write of %q to %s failed after %d attempt(s) (%s): %v",
			e.Name, e.Store, e.Attempts, e.Cause, innermost(e.Err))
	default:
		return fmt.Sprintf("%s of %q from %s failed after %d attempt(s) (%s): %v",
			e.Phase, e.Name, e.Store, e.Attempts, e.Kind, innermost(e.Err))
	}
}

func (e *Error) Unwrap() error { return e.Err }

// innermost strips the executor wrapper so messages do not repeat the attempt count.
func innermost(err error) error {
	var retryErr *retry.Error
	if errors.As(err, &retryErr) && retryErr.Err != nil {
		return retryErr.Err
	}
	return err
}

// kindOf maps an executor failure to a transfer kind.
func kindOf(err error) Kind {
	var retryErr *retry.Error
	if !errors.As(err, &retryErr) {
		return KindFatal
	}

	switch retryErr.Kind {
	case retry.KindNotFound:
		return KindSourceMissing
	case retry.KindCanceled:
		return KindCanceled
	case retry.KindExhausted:
		return KindExhaustedRetries
	}

	var authErr *credential.AuthenticationError
	if errors.As(err, &authErr) {
		return KindAuthentication
	}
	return KindFatal
}

// attemptsOf returns the attempt count recorded by the executor.
func attemptsOf(err error) int {
	var retryErr *retry.Error
	if errors.As(err, &retryErr) {
		return retryErr.Attempts
	}
	return 0
}

// ExitCode maps a Transfer error to a process exit code: 0 on success, 1
// when the source secret is missing and 2 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var transferErr *Error
	if errors.As(err, &transferErr) && transferErr.Kind == KindSourceMissing {
		return 1
	}
	return 2
}
