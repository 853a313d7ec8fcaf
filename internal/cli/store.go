package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palamut62/ai-gant-news/internal/config"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
	"github.com/palamut62/ai-gant-news/internal/notify"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables, indexes and triggers of the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := rootOpts.load(cmd)
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}

			st, err := storage.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

// NewLastUpdateCommand creates the last-update command.
func NewLastUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last-update",
		Short: "Print the time of the latest successful ingestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := rootOpts.load(cmd)
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}

			st, err := storage.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			summary, err := st.LatestBatchSummary(cmd.Context())
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no successful ingestion yet")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d developments)\n",
				summary.CreatedAt.In(cfg.Scheduler.Location()).Format("2006-01-02 15:04:05 MST"), summary.SuccessCount)
			return nil
		},
	}
}

// NewTailCommand creates the tail command.
func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print recent audit entries, then follow new ones as JSON lines (postgres only)",
		Long: `Print the most recent audit entries as JSON lines, oldest first, then follow new ones.

Following needs the postgres driver: its change feed is shared between processes. The sqlite
feed lives inside the serve process, so with sqlite tail prints the recent entries and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := rootOpts.load(cmd)
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			st, err := storage.Open(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			bridge := notify.NewBridge(st, st, notify.Options{
				Window:      cfg.Feed.Window,
				RecentLimit: cfg.Feed.RecentLimit,
			}, logger, nil)
			defer bridge.Close()

			follow := cfg.Database.Driver != config.DriverSQLite
			var sub *notify.Subscription
			if follow {
				sub, err = bridge.Subscribe(ctx, "")
				if err != nil {
					return err
				}
				defer sub.Close()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if recent > 0 {
				entries, err := bridge.Recent(ctx, recent)
				if err != nil {
					return err
				}
				// oldest first, like a log
				for i := len(entries) - 1; i >= 0; i-- {
					if err := enc.Encode(entries[i]); err != nil {
						return err
					}
				}
			}

			if !follow {
				fmt.Fprintln(cmd.ErrOrStderr(), "tail: the sqlite change feed is only visible inside the serve process; not following")
				return nil
			}
			for entry := range sub.C {
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "number of recent entries to print first (0 to skip)")
	return cmd
}
