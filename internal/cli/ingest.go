package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palamut62/ai-gant-news/internal/app"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion and print the report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := rootOpts.load(cmd)

			ctx, stop := signalContext(cmd)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Success {
				return fmt.Errorf("ingestion unsuccessful: %s", report.Message)
			}
			return nil
		},
	}
}
