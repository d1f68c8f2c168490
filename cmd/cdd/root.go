package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/laird/nextgen-CDD-sub002/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cdd",
	Short: "cdd - investment research orchestration core",
	Long: `cdd runs commercial due diligence research engagements: it decomposes
an investment thesis into a hypothesis graph, gathers and applies evidence,
stress-tests hypotheses, folds in expert-call transcripts, and closes out
engagements with a learning record.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig resolves and loads configuration before any command runs.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	path := configPath
	if path == "" {
		path = os.Getenv("CDD_CONFIG")
	}
	if path == "" {
		path = "cdd.yaml"
	}

	loaded, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(path)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// newLogger builds the process logger from the logging config, with
// --verbose forcing debug level.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
