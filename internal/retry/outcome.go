package retry

import (
	"fmt"

	"github.com/systmms/secretxfer/pkg/secretstore"
)

// OutcomeKind tags the result of a single store call.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeNonRetryable
)

// Outcome is the classified result of one attempt.
type Outcome struct {
	Kind   OutcomeKind
	Record secretstore.Record
	Class  Class
	Cause  error
}

// State is the bookkeeping of one Run call.
type State struct {
	Attempt   int
	LastCause error
}

// Kind identifies why Run gave up.
type Kind int

const (
	// KindFatal is a non-retryable failure.
	KindFatal Kind = iota

	// KindNotFound means the secret does not exist.
	KindNotFound

	// KindExhausted means every attempt failed transiently.
	KindExhausted

	// KindCanceled means the context ended before the operation succeeded.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindExhausted:
		return "retries exhausted"
	case KindCanceled:
		return "canceled"
	default:
		return "fatal"
	}
}

// Error is returned by Run when the operation did not succeed.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
