package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/secretxfer/internal/config"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/metrics"
	"github.com/systmms/secretxfer/internal/retry"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		storeRole  string
		name       string
		reveal     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch a single secret from one store",
		Long: `Fetch one secret, retrying transient failures, and print it.

The value is redacted unless --reveal is given. With --json the secret's
metadata (version, content type, tags) is printed as well.

Examples:
  # Check that the source secret is readable
  secretxfer get --name db-pass

  # Print the destination copy for use in a script
  export DB_PASS=$(secretxfer get --store destination --name db-pass-copy --reveal)

  # Inspect metadata
  secretxfer get --name db-pass --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			if name == "" {
				switch storeRole {
				case "source":
					name = cfg.Definition.Transfer.SourceName
				case "destination":
					name = cfg.Definition.Request().DestinationName
				}
			}
			if name == "" {
				return dserrors.UserError{
					Message:    "Secret name is required",
					Suggestion: "Use --name <secret-name> or set transfer.source_name",
				}
			}

			store, sc, err := newStore(cfg, storeRole)
			if err != nil {
				return err
			}
			defer closeStore(store)

			def := cfg.Definition
			executor := newExecutor(def.Retry, def.Retry.FetchAttempts(), metrics.NewRecorder(), store.Name(), secretstore.OpFetch).
				WithOnRetry(func(attempt int, err error, delay time.Duration) {
					cfg.Logger.Warn("Fetch of %s from %s failed (attempt %d): %v; retrying in %s",
						name, store.Name(), attempt, err, delay)
				})

			ctx, stop := signalContext(cmd)
			defer stop()

			rec, err := executor.Run(ctx, func(ctx context.Context) (secretstore.Record, error) {
				return store.Fetch(ctx, name)
			})
			if err != nil {
				var retryErr *retry.Error
				if errors.As(err, &retryErr) && retryErr.Kind == retry.KindNotFound {
					return &ExitError{Code: 1, Err: dserrors.UserError{
						Message:    fmt.Sprintf("Secret '%s' not found in %s", name, store.Name()),
						Suggestion: "Secret names are case-sensitive. Check the name and the store configuration",
						Err:        err,
					}}
				}
				return dserrors.StoreError(sc.Type, secretstore.OpFetch, err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				output := map[string]interface{}{
					"store":   store.Name(),
					"type":    sc.Type,
					"name":    name,
					"version": rec.Version(),
					"tags":    rec.Tags(),
				}
				if ct, ok := rec.ContentType(); ok {
					output["content_type"] = ct
				}
				if reveal {
					output["value"] = rec.Value()
				}

				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(output); err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
				return nil
			}

			if reveal {
				_, _ = fmt.Fprint(out, rec.Value())
				return nil
			}
			_, _ = fmt.Fprintln(out, rec.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&storeRole, "store", "source", "Store to read from: source or destination")
	cmd.Flags().StringVar(&name, "name", "", "Secret name (defaults to the configured transfer name)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the secret value instead of redacting it")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format with metadata")

	return cmd
}
