package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/secretxfer/internal/metrics"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// DefaultMaxAttempts is the attempt budget when none is configured.
const DefaultMaxAttempts = 5

// Operation is one store call.
type Operation func(ctx context.Context) (secretstore.Record, error)

// FailureClassifier maps an error to a Class.
type FailureClassifier interface {
	Classify(err error) Class
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs an Operation until it succeeds, fails permanently or the
// attempt budget runs out.
type Executor struct {
	classifier  FailureClassifier
	backoff     Backoff
	maxAttempts int
	sleep       SleepFunc
	onRetry     func(attempt int, err error, delay time.Duration)

	recorder *metrics.Recorder
	store    string
	op       string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxAttempts sets the attempt budget. Values below 1 mean a single attempt.
func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) {
		if n < 1 {
			n = 1
		}
		e.maxAttempts = n
	}
}

// WithSleep replaces the backoff sleep. Tests use it to avoid real waits.
func WithSleep(sleep SleepFunc) ExecutorOption {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// WithMetrics records attempts and retries under the given store and op labels.
func WithMetrics(recorder *metrics.Recorder, store, op string) ExecutorOption {
	return func(e *Executor) {
		e.recorder = recorder
		e.store = store
		e.op = op
	}
}

// NewExecutor creates a new retry executor.
// Panics if classifier or backoff is nil.
func NewExecutor(classifier FailureClassifier, backoff Backoff, opts ...ExecutorOption) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if backoff == nil {
		panic("backoff cannot be nil")
	}
	e := &Executor{
		classifier:  classifier,
		backoff:     backoff,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithOnRetry returns a new Executor with the specified retry callback.
// The receiver is not modified.
func (e *Executor) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// MaxAttempts returns the attempt budget.
func (e *Executor) MaxAttempts() int {
	return e.maxAttempts
}

// Run invokes op until it succeeds or a non-retryable condition is reached.
// Failures are returned as *Error.
func (e *Executor) Run(ctx context.Context, op Operation) (secretstore.Record, error) {
	state := State{Attempt: 1}

	if err := ctx.Err(); err != nil {
		return secretstore.Record{}, &Error{Kind: KindCanceled, Attempts: 0, Err: err}
	}

	for {
		outcome := e.attempt(ctx, op)

		if outcome.Kind == OutcomeSuccess {
			return outcome.Record, nil
		}

		// The caller gave up while the call was in flight.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return secretstore.Record{}, &Error{
				Kind:     KindCanceled,
				Attempts: state.Attempt,
				Err:      canceledCause(ctxErr, outcome.Cause),
			}
		}

		if outcome.Kind == OutcomeNonRetryable {
			kind := KindFatal
			if outcome.Class == ClassNotFound {
				kind = KindNotFound
			}
			return secretstore.Record{}, &Error{Kind: kind, Attempts: state.Attempt, Err: outcome.Cause}
		}

		state.LastCause = outcome.Cause
		if state.Attempt >= e.maxAttempts {
			return secretstore.Record{}, &Error{Kind: KindExhausted, Attempts: state.Attempt, Err: state.LastCause}
		}

		delay := e.backoff.Delay(state.Attempt)
		if e.onRetry != nil {
			e.onRetry(state.Attempt, state.LastCause, delay)
		}
		e.recorder.RecordRetry(e.store, e.op)

		if err := e.sleep(ctx, delay); err != nil {
			return secretstore.Record{}, &Error{
				Kind:     KindCanceled,
				Attempts: state.Attempt,
				Err:      canceledCause(err, state.LastCause),
			}
		}
		state.Attempt++
	}
}

// attempt performs one call and classifies the result.
func (e *Executor) attempt(ctx context.Context, op Operation) Outcome {
	rec, err := op(ctx)
	if err == nil {
		e.recorder.RecordAttempt(e.store, e.op, metrics.OutcomeSuccess)
		return Outcome{Kind: OutcomeSuccess, Record: rec}
	}

	class := e.classifier.Classify(err)
	e.recorder.RecordAttempt(e.store, e.op, class.MetricLabel())

	if class == ClassTransient {
		return Outcome{Kind: OutcomeRetryable, Class: class, Cause: err}
	}
	return Outcome{Kind: OutcomeNonRetryable, Class: class, Cause: err}
}

// MetricLabel returns the store attempt outcome label for c.
func (c Class) MetricLabel() string {
	switch c {
	case ClassTransient:
		return metrics.OutcomeTransient
	case ClassNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeFatal
	}
}

func canceledCause(ctxErr, last error) error {
	if last == nil || errors.Is(last, ctxErr) {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %w)", ctxErr, last)
}

// sleepContext waits for d, returning early with ctx.Err() if ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
