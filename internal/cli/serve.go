package cli

import (
	"github.com/spf13/cobra"

	"github.com/palamut62/ai-gant-news/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and periodic ingestion",
		Long: `Start the HTTP surface (/api/update-ai, /api/cron, /api/developments, /api/logs,
/api/logs/stream, /api/last-update, /health, /ready, /metrics) together with the
interval scheduler and, when configured, the Telegram relay.

Example:
  timeline serve --config timeline.yaml
  timeline serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := rootOpts.load(cmd)
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := application.Close(); closeErr != nil {
					logger.Error("error closing storage", "error", closeErr)
				}
			}()

			return application.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
