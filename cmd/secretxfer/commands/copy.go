package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/systmms/secretxfer/internal/config"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/metrics"
	"github.com/systmms/secretxfer/internal/transfer"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

func NewCopyCommand(cfg *config.Config) *cobra.Command {
	var (
		sourceName      string
		destName        string
		copyTags        bool
		copyContentType bool
		maxAttempts     int
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy one secret from the source store to the destination store",
		Long: `Fetch a secret from the source store and write it to the destination store.

Transient failures (throttling, 5xx, network errors) are retried with
exponential backoff. A missing source secret exits with status 1; any other
failure exits with status 2.

Examples:
  # Copy using secretxfer.yaml and .env
  secretxfer copy

  # Copy under a new name without tags
  secretxfer copy --source-name db-pass --dest-name db-pass-copy --copy-tags=false

  # Check what would be written
  secretxfer copy --dry-run`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

			if err := cfg.Load(); err != nil {
				status(stderr, "error", "%v", err)
				return &ExitError{Code: 2, Err: err, Reported: true}
			}
			def := cfg.Definition

			flags := cmd.Flags()
			if flags.Changed("source-name") {
				def.Transfer.SourceName = sourceName
			}
			if flags.Changed("dest-name") {
				def.Transfer.DestinationName = destName
			}
			if flags.Changed("copy-tags") {
				def.Transfer.CopyTags = &copyTags
			}
			if flags.Changed("copy-content-type") {
				def.Transfer.CopyContentType = &copyContentType
			}
			if flags.Changed("max-attempts") {
				def.Retry.MaxAttempts = maxAttempts
				def.Retry.FetchMaxAttempts = 0
				def.Retry.WriteMaxAttempts = 0
			}
			dryRun = dryRun || def.Transfer.DryRun

			if err := def.RequireStores(); err != nil {
				status(stderr, "error", "%v", err)
				return &ExitError{Code: 2, Err: err, Reported: true}
			}

			source, srcCfg, err := newStore(cfg, "source")
			if err != nil {
				status(stderr, "error", "%v", err)
				return &ExitError{Code: 2, Err: err, Reported: true}
			}
			defer closeStore(source)

			destination, dstCfg, err := newStore(cfg, "destination")
			if err != nil {
				status(stderr, "error", "%v", err)
				return &ExitError{Code: 2, Err: err, Reported: true}
			}
			defer closeStore(destination)

			recorder := metrics.NewRecorder()
			orchestrator := transfer.New(source, destination,
				transfer.WithFetchExecutor(newExecutor(def.Retry, def.Retry.FetchAttempts(), recorder, source.Name(), secretstore.OpFetch)),
				transfer.WithWriteExecutor(newExecutor(def.Retry, def.Retry.WriteAttempts(), recorder, destination.Name(), secretstore.OpUpsert)),
				transfer.WithLogger(cfg.Logger.Named("transfer")),
				transfer.WithRecorder(recorder),
				transfer.WithDryRun(dryRun),
			)

			ctx, stop := signalContext(cmd)
			defer stop()

			req := def.Request()
			result, err := orchestrator.Transfer(ctx, req)
			if result != nil && (result.State == transfer.StateDone || result.State == transfer.StateWriteFailed) {
				status(stdout, "info", "Retrieved '%s' from %s.", req.SourceName, source.Name())
			}
			if err != nil {
				reportTransferError(cmd, err, req, srcCfg, dstCfg)
				return &ExitError{Code: transfer.ExitCode(err), Err: err, Reported: true}
			}

			if result.DryRun {
				ct, _ := result.Destination.ContentType()
				status(stdout, "ok", "Dry run: '%s' would be written to %s (content type %q, %d tag(s)).",
					req.DestinationName, destination.Name(), ct, len(result.Destination.Tags()))
				return nil
			}
			status(stdout, "ok", "Secret '%s' successfully written to %s.", req.DestinationName, destination.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceName, "source-name", "", "Source secret name (overrides transfer.source_name)")
	cmd.Flags().StringVar(&destName, "dest-name", "", "Destination secret name (overrides transfer.destination_name; defaults to the source name)")
	cmd.Flags().BoolVar(&copyTags, "copy-tags", true, "Copy tags from the source secret")
	cmd.Flags().BoolVar(&copyContentType, "copy-content-type", true, "Copy the content type from the source secret")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget for both fetch and write (overrides retry settings)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and derive the destination record without writing it")

	return cmd
}

// reportTransferError prints the [error] line for a failed transfer.
func reportTransferError(cmd *cobra.Command, err error, req transfer.Request, srcCfg, dstCfg config.StoreConfig) {
	stderr := cmd.ErrOrStderr()

	var transferErr *transfer.Error
	if !errors.As(err, &transferErr) {
		status(stderr, "error", "%v", err)
		return
	}

	switch {
	case transferErr.Kind == transfer.KindSourceMissing:
		status(stderr, "error", "Secret '%s' not found in %s.", req.SourceName, transferErr.Store)
	case transferErr.Kind == transfer.KindInvalidRequest:
		status(stderr, "error", "%v", dserrors.UserError{
			Message:    transferErr.Error(),
			Suggestion: "Set transfer.source_name in secretxfer.yaml, SOURCE_SECRET_NAME, or pass --source-name",
		})
	case transferErr.Phase == transfer.PhaseWrite:
		status(stderr, "error", "Failed writing to %s: %v", transferErr.Store,
			dserrors.StoreError(dstCfg.Type, "write", transferErr.Err))
	default:
		status(stderr, "error", "Failed reading '%s' from %s: %v", req.SourceName, transferErr.Store,
			dserrors.StoreError(srcCfg.Type, "fetch", transferErr.Err))
	}
}
