package transfer

import (
	"context"
	"time"

	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/internal/metrics"
	"github.com/systmms/secretxfer/internal/retry"
	"github.com/systmms/secretxfer/internal/secure"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// Result describes a finished transfer.
//
// State is one of the terminal states, except for a request rejected by
// validation, which returns a Result still in StateInit.
type Result struct {
	State         State
	SourceVersion string
	// Destination is the record as stored. On a dry run it holds the
	// derived metadata with an empty value.
	Destination   secretstore.Record
	FetchAttempts int
	WriteAttempts int
	Elapsed       time.Duration
	DryRun        bool
}

// Orchestrator runs fetch-then-write transfers between two stores.
// It holds no per-transfer state and is safe for concurrent use.
type Orchestrator struct {
	source      secretstore.Store
	destination secretstore.Store

	fetch  *retry.Executor
	write  *retry.Executor
	logger *logging.Logger

	recorder *metrics.Recorder
	dryRun   bool
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetchExecutor sets the executor used for the source fetch.
func WithFetchExecutor(e *retry.Executor) Option {
	return func(o *Orchestrator) { o.fetch = e }
}

// WithWriteExecutor sets the executor used for the destination write.
func WithWriteExecutor(e *retry.Executor) Option {
	return func(o *Orchestrator) { o.write = e }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder records transfer outcomes and durations.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithDryRun stops after the fetch and derive steps.
func WithDryRun(dryRun bool) Option {
	return func(o *Orchestrator) { o.dryRun = dryRun }
}

// New creates an Orchestrator. Executors default to the standard classifier
// and exponential backoff with DefaultMaxAttempts each.
// Panics if either store is nil.
func New(source, destination secretstore.Store, opts ...Option) *Orchestrator {
	if source == nil || destination == nil {
		panic("transfer: source and destination stores are required")
	}
	o := &Orchestrator{
		source:      source,
		destination: destination,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.fetch == nil {
		o.fetch = retry.NewExecutor(retry.NewClassifier(), retry.NewExponential(),
			retry.WithMetrics(o.recorder, source.Name(), secretstore.OpFetch))
	}
	if o.write == nil {
		o.write = retry.NewExecutor(retry.NewClassifier(), retry.NewExponential(),
			retry.WithMetrics(o.recorder, destination.Name(), secretstore.OpUpsert))
	}
	return o
}

// Transfer copies req.SourceName from the source store to
// req.DestinationName in the destination store.
//
// On failure the returned Result still carries the final state and attempt
// counts, and the error is a *Error.
func (o *Orchestrator) Transfer(ctx context.Context, req Request) (*Result, error) {
	start := o.now()
	sm := newStateMachine()
	result := &Result{State: StateInit, DryRun: o.dryRun}

	finish := func(err error) (*Result, error) {
		result.State = sm.current
		result.Elapsed = o.now().Sub(start)
		o.recorder.RecordTransfer(resultLabel(result, err), result.Elapsed.Seconds())
		return result, err
	}

	if err := req.Validate(); err != nil {
		return finish(&Error{Kind: KindInvalidRequest, Phase: PhaseValidate, Err: err})
	}

	// Fetch.
	sm.mustAdvance(StateFetching)
	o.logger.Info("Fetching secret %s from %s", req.SourceName, o.source.Name())

	fetcher := o.fetch.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		o.logger.Warn("Fetch of %s from %s failed (attempt %d/%d): %v; retrying in %s",
			req.SourceName, o.source.Name(), attempt, o.fetch.MaxAttempts(), err, delay)
	})
	fetched, err := fetcher.Run(ctx, func(ctx context.Context) (secretstore.Record, error) {
		result.FetchAttempts++
		return o.source.Fetch(ctx, req.SourceName)
	})
	if err != nil {
		sm.mustAdvance(StateFetchFailed)
		kind := kindOf(err)
		o.logger.Error("Fetch of %s from %s failed: %s", req.SourceName, o.source.Name(), kind)
		return finish(&Error{
			Kind:     kind,
			Phase:    PhaseFetch,
			Store:    o.source.Name(),
			Name:     req.SourceName,
			Attempts: attemptsOf(err),
			Err:      err,
		})
	}

	sm.mustAdvance(StateFetched)
	result.SourceVersion = fetched.Version()

	// Keep the value sealed until the write needs it.
	sealed := secure.Seal(fetched.Value())
	defer sealed.Destroy()
	template := DeriveRecord(req, withValue(fetched, ""))

	o.logger.Debug("Derived %s for %s (%d byte value)", template, o.destination.Name(), sealed.Size())

	if o.dryRun {
		o.logger.Info("Dry run: not writing %s to %s", req.DestinationName, o.destination.Name())
		result.Destination = template
		sm.mustAdvance(StateDone)
		return finish(nil)
	}

	// Write.
	sm.mustAdvance(StateWriting)
	o.logger.Info("Writing secret %s to %s", req.DestinationName, o.destination.Name())

	writer := o.write.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		o.logger.Warn("Write of %s to %s failed (attempt %d/%d): %v; retrying in %s",
			req.DestinationName, o.destination.Name(), attempt, o.write.MaxAttempts(), err, delay)
	})
	stored, err := writer.Run(ctx, func(ctx context.Context) (secretstore.Record, error) {
		result.WriteAttempts++
		var stored secretstore.Record
		revealErr := sealed.Reveal(func(value string) error {
			var err error
			stored, err = o.destination.Upsert(ctx, req.DestinationName, withValue(template, value))
			return redactError(err, value)
		})
		return stored, revealErr
	})
	if err != nil {
		sm.mustAdvance(StateWriteFailed)
		cause := kindOf(err)
		if cause == KindSourceMissing {
			// A 404 on write means the destination container is missing.
			cause = KindFatal
		}
		o.logger.Error("Write of %s to %s failed: %s", req.DestinationName, o.destination.Name(), cause)
		return finish(&Error{
			Kind:     KindDestinationWriteFailed,
			Cause:    cause,
			Phase:    PhaseWrite,
			Store:    o.destination.Name(),
			Name:     req.DestinationName,
			Attempts: attemptsOf(err),
			Err:      err,
		})
	}

	sm.mustAdvance(StateDone)
	result.Destination = stored
	o.logger.Info("Copied %s from %s to %s as %s in %s",
		req.SourceName, o.source.Name(), o.destination.Name(), req.DestinationName, o.now().Sub(start).Round(time.Millisecond))
	return finish(nil)
}

// redactedError scrubs a secret from an error message while keeping the
// chain intact for classification.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// redactError hides value in err's message. Some SDK errors echo the
// request body.
func redactError(err error, value string) error {
	if err == nil {
		return nil
	}
	msg := logging.Redact(err.Error(), []string{value})
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

func resultLabel(r *Result, err error) string {
	if err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind.String()
		}
		return KindFatal.String()
	}
	if r.DryRun {
		return "dry_run"
	}
	return "success"
}
