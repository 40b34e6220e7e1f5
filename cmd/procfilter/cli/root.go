package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkingovr/procfilter/internal/config"
	"github.com/tkingovr/procfilter/internal/runner"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "procfilter",
	Short: "procfilter: pass mail through external filter programs",
	Long: `procfilter hands a mail message to a chain of external programs
(classifiers, confirmation gateways such as TMDA, or arbitrary filters).
Each program may rewrite the message, annotate it, or have it dropped
according to its exit status.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = newLogger(cmd.ErrOrStderr(), config.DefaultLogFormat, level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command. Errors are logged here; the caller only
// turns them into an exit status.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errDropped) {
		if logger == nil {
			logger = newLogger(os.Stderr, config.DefaultLogFormat, slog.LevelInfo)
		}
		logger.Error("procfilter failed", "error", err)
	}
	return err
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig reads --config, or the default file if it exists, and applies
// its logging settings. Without either, built-in defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		def := runner.ExpandHome(config.DefaultPath())
		if _, err := os.Stat(def); err == nil {
			path = def
		}
	}

	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger = newLogger(cmd.ErrOrStderr(), cfg.Settings.LogFormat, level)
	logger.Debug("configuration loaded", "path", path, "filters", len(cfg.Filters))
	return cfg, nil
}

func requireFilters(cfg *config.Config) error {
	if len(cfg.Filters) == 0 {
		return fmt.Errorf("%w: no filters configured", config.ErrInvalid)
	}
	return nil
}
