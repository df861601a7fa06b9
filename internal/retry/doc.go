// Package retry runs secret store calls with classification-driven retries
// and capped exponential backoff.
//
// # Example Usage
//
//	executor := retry.NewExecutor(
//	    retry.NewClassifier(),
//	    retry.NewExponential(),
//	    retry.WithMaxAttempts(5),
//	)
//
//	rec, err := executor.Run(ctx, func(ctx context.Context) (secretstore.Record, error) {
//	    return store.Fetch(ctx, "db-pass")
//	})
//
// # Error Classification
//
// Classifier maps any error to Transient, NotFound or Fatal. Only Transient
// failures are retried. Store adapters translate SDK errors into
// secretstore.Error values carrying an HTTP-equivalent status, so the
// classifier never sees SDK types.
//
// # Backoff
//
// Exponential computes min(cap, base*2^(attempt-1)). Jitter is off by default.
//
// # Thread Safety
//
// Executor instances keep no state between Run calls and are safe for
// concurrent use. WithOnRetry returns an independent copy.
package retry
