package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/secretxfer/internal/config"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/server"
)

func NewServeCommand(cfg *config.Config) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured secret over HTTP",
		Long: `Run an HTTP server backed by one configured store.

Endpoints:
  GET  /, /health        liveness
  GET  /api/secret       fetch the configured secret (no retries)
  GET  /api/status       report whether the secret can be read
  POST /api/check-secret echo input; "secret" returns the secret
  GET  /metrics          Prometheus metrics

The store is chosen by server.store (default: source) and the secret by
server.secret_name or SECRET_NAME.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			if cmd.Flags().Changed("port") {
				def.Server.Port = port
			}
			if def.Server.SecretName == "" {
				return dserrors.UserError{
					Message:    "No secret to serve",
					Suggestion: "Set server.secret_name in secretxfer.yaml or SECRET_NAME in the environment",
				}
			}

			store, sc, err := newStore(cfg, def.Server.Store)
			if err != nil {
				return err
			}
			defer closeStore(store)

			srvCfg := server.DefaultConfig()
			srvCfg.Port = def.Server.Port
			srvCfg.SecretName = def.Server.SecretName
			if t := sc.Timeout(); t > 0 {
				srvCfg.FetchTimeout = t
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			return server.New(store, srvCfg, cfg.Logger.Named("server")).Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides server.port and PORT)")

	return cmd
}
