package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systmms/secretxfer/internal/config"
	"github.com/systmms/secretxfer/internal/metrics"
	"github.com/systmms/secretxfer/internal/retry"
	"github.com/systmms/secretxfer/internal/stores"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// storeRegistry builds stores from config blocks. Tests swap it out.
var storeRegistry = stores.NewRegistry()

// ExitError carries a process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error

	// Reported is set when the command already printed the failure.
	Reported bool
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 2
}

// storeName returns the display name of a store: its "name" field, or the
// role it plays.
func storeName(role string, sc config.StoreConfig) string {
	if name, ok := sc.Config["name"].(string); ok && name != "" {
		return name
	}
	return role
}

// newStore creates the store configured for role.
func newStore(cfg *config.Config, role string) (secretstore.Store, config.StoreConfig, error) {
	sc, err := cfg.Definition.Store(role)
	if err != nil {
		return nil, sc, err
	}
	if sc.Type == "" {
		return nil, sc, fmt.Errorf("%s store is not configured", role)
	}

	store, err := storeRegistry.Create(storeName(role, sc), sc.Type, sc.Config, stores.Deps{
		Logger:  cfg.Logger.Named(role),
		Timeout: sc.Timeout(),
	})
	if err != nil {
		return nil, sc, fmt.Errorf("failed to create %s store: %w", role, err)
	}
	return store, sc, nil
}

// newExecutor builds a retry executor from the retry settings.
func newExecutor(r config.RetryConfig, attempts int, recorder *metrics.Recorder, store, op string) *retry.Executor {
	var classifierOpts []retry.ClassifierOption
	if len(r.TransientStatuses) > 0 {
		classifierOpts = append(classifierOpts, retry.WithTransientStatuses(r.TransientStatuses...))
	}
	if r.RetryAuthFailures != nil {
		classifierOpts = append(classifierOpts, retry.WithRetryAuthFailures(*r.RetryAuthFailures))
	}

	backoff := retry.NewExponential(
		retry.WithBaseDelay(r.BaseDelay),
		retry.WithMaxDelay(r.MaxDelay),
		retry.WithJitter(r.Jitter),
	)

	return retry.NewExecutor(retry.NewClassifier(classifierOpts...), backoff,
		retry.WithMaxAttempts(attempts),
		retry.WithMetrics(recorder, store, op),
	)
}

// status prints a "[level] message" line.
func status(w io.Writer, level, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, "[%s] %s\n", level, fmt.Sprintf(format, args...))
}

// closeStore releases store resources when the store holds any.
func closeStore(store secretstore.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

// signalContext is the command's context, canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
