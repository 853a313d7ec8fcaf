package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/palamut62/ai-gant-news/internal/config"
	"github.com/palamut62/ai-gant-news/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command of the timeline CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Bilingual AI developments timeline",
		Long: `Collects recent developments from a generative text service in Turkish and English,
validates and stores them, and streams changes to live viewers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (default $TIMELINE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))
	cmd.AddCommand(NewLastUpdateCommand(opts))

	return cmd
}

// load resolves configuration and a logger writing to the command's stderr.
func (o *RootOptions) load(cmd *cobra.Command) (config.Config, *slog.Logger) {
	var cfg config.Config
	if o.ConfigPath != "" {
		cfg = config.LoadFrom(o.ConfigPath)
	} else {
		cfg = config.Load()
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return cfg, logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)
}

// signalContext is cancelled on SIGINT/SIGTERM or when the command context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
