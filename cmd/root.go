package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "catalogmap",
	Short: "catalogmap — browse a source catalog and map tables to a SQL destination",
	Long: `catalogmap browses the catalog of a source database (SQL Server,
PostgreSQL, Oracle, MySQL or MongoDB), lets you check the tables and views
to expose, and writes their destination table definitions.

Running without a subcommand launches the interactive tree browser.`,
	SilenceUsage: true,
	RunE:         runBrowse,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.catalogmap/catalogmap.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// loadConfig reads the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger creates the file logger, also writing to console when it is
// not nil. --log-level wins over the config file when given.
func newLogger(cmd *cobra.Command, cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := cfg.Logging.Level
	if cmd.Flags().Changed("log-level") || level == "" {
		level = logLevel
	}
	return logging.Setup(level, cfg.Logging.Directory, console)
}

// newEngine loads the config and builds the engine used by a command. The
// returned cleanup closes the engine and the log file.
func newEngine(cmd *cobra.Command, console io.Writer) (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, nil, fmt.Errorf("invalid config: %s (run 'catalogmap config validate')", problems[0])
	}

	logger, closer, err := newLogger(cmd, cfg, console)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("closing engine", "error", err)
		}
		closer.Close()
	}
	return eng, cleanup, nil
}
