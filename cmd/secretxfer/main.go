package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/secretxfer/cmd/secretxfer/commands"
	"github.com/systmms/secretxfer/internal/config"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe enclaves on SIGINT/SIGTERM as well as on normal exit.
	memguard.CatchInterrupt()

	code := run()
	memguard.Purge()
	os.Exit(code)
}

func run() int {
	// Global flags
	var (
		configFile string
		envFile    string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}
	var logger *logging.Logger

	rootCmd := &cobra.Command{
		Use:   "secretxfer",
		Short: "Copy secrets between secret stores, retrying transient failures",
		Long: `secretxfer copies a single secret from a source store (for example a parent
Azure Key Vault) to a destination store, carrying its content type and tags.
Throttling, 5xx responses and network errors are retried with capped
exponential backoff.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.EnvFile = envFile
			cfg.Logger = logger
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "secretxfer.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewCopyCommand(cfg),
		commands.NewGetCommand(cfg),
		commands.NewServeCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewCompletionCommand(),
	)

	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err == nil {
		return 0
	}

	var exitErr *commands.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
	}
	return commands.ExitCode(err)
}
