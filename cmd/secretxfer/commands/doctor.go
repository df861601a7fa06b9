package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/secretxfer/internal/config"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

const doctorTimeout = 30 * time.Second

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check store connectivity and configuration",
		Long: `Verify that both stores are properly configured and accessible.

This command checks:
- Configuration file validity
- Store construction (URLs, credentials, regions)
- Store authentication and connectivity, where the store supports it`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg.Logger.Info("Checking secretxfer configuration...")
			if err := cfg.Load(); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Definition.RequireStores(); err != nil {
				return err
			}
			cfg.Logger.Info("✓ Configuration loaded successfully")

			results := make([]StoreHealth, 0, 2)
			for _, role := range []string{"source", "destination"} {
				results = append(results, checkStore(cmd.Context(), cfg, role))
			}

			displayHealthResults(out, results, verbose)

			healthy := 0
			for _, result := range results {
				if result.Status == "healthy" {
					healthy++
				}
			}

			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d stores healthy\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some stores are not healthy")
			}

			cfg.Logger.Info("✓ All systems operational!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for unhealthy stores")

	return cmd
}

// StoreHealth represents the health status of a store
type StoreHealth struct {
	Role       string
	Name       string
	Type       string
	Status     string // healthy, error
	Error      string
	Message    string
	Suggestion string
}

func checkStore(ctx context.Context, cfg *config.Config, role string) StoreHealth {
	if ctx == nil {
		ctx = context.Background()
	}
	sc, _ := cfg.Definition.Store(role)
	health := StoreHealth{Role: role, Name: storeName(role, sc), Type: sc.Type}

	store, _, err := newStore(cfg, role)
	if err != nil {
		health.Status = "error"
		health.Error = err.Error()
		return health
	}
	defer closeStore(store)

	validator, ok := store.(secretstore.Validator)
	if !ok {
		health.Status = "healthy"
		health.Message = "Store is configured (no connectivity check)"
		return health
	}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	if err := validator.Validate(ctx); err != nil {
		health.Status = "error"
		health.Error = err.Error()
		if userErr, ok := dserrors.StoreError(sc.Type, secretstore.OpValidate, err).(dserrors.UserError); ok {
			health.Suggestion = userErr.Suggestion
		}
		return health
	}

	health.Status = "healthy"
	health.Message = "Store is ready"
	return health
}

// displayHealthResults shows store health in a formatted table
func displayHealthResults(out io.Writer, results []StoreHealth, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "STORE\tNAME\tTYPE\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t----\t----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		message := result.Message
		if result.Error != "" {
			message = result.Error
		}

		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			result.Role, result.Name, result.Type, status, message)
	}

	_ = w.Flush()

	if verbose {
		for _, result := range results {
			if result.Status == "error" && result.Suggestion != "" {
				_, _ = fmt.Fprintf(out, "\n%s (%s) suggestion:\n  • %s\n", result.Role, result.Type, result.Suggestion)
			}
		}
	}
}
