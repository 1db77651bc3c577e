// Package cli is the cobra command tree of the readersync binary.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"ReaderSync/internal/app"
	"ReaderSync/internal/config"
	"ReaderSync/internal/logging"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigDir         string
	ConfigFile        string
	LogLevel          string
	LogFormat         string
	Folder            string
	MaxSaveCount      int
	MaxFetchCount     int
	DeleteAlreadyRead bool
	UnreadStaleHours  int

	// newApp builds the application; tests swap it.
	newApp func(cfg config.Config, logger *slog.Logger) runner
}

// runner is the slice of app.Application the commands drive.
type runner interface {
	syncer
	planner
	watcher
	loginer
	ledgerReader
}

// NewRootCommand creates the root command. Running it without a subcommand performs one sync.
func NewRootCommand() *cobra.Command {
	return newRootCommand(func(cfg config.Config, logger *slog.Logger) runner {
		return app.New(cfg, logger, VersionString())
	})
}

func newRootCommand(newApp func(config.Config, *slog.Logger) runner) *cobra.Command {
	opts := &RootOptions{newApp: newApp}

	cmd := &cobra.Command{
		Use:   "readersync",
		Short: "Sync Substack articles onto a reMarkable tablet",
		Long: `readersync renders new Substack articles to PDF and uploads them into one
folder on a reMarkable tablet, keeping at most --max-save-count articles there.
Fully read articles can be removed and stale unread ones traded for new ones.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigDir, "config-folder", "", "folder holding the ledger and session cookies (default <user config dir>/readersync)")
	flags.StringVar(&opts.ConfigFile, "config", "", "YAML config file (default <config-folder>/config.yaml when present)")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	flags.StringVar(&opts.Folder, "folder", "Substack", "device folder articles are synced into")
	flags.IntVar(&opts.MaxSaveCount, "max-save-count", 20, "maximum number of articles kept in the device folder")
	flags.IntVar(&opts.MaxFetchCount, "max-fetch-count", 40, "maximum number of feed items examined per run")
	flags.BoolVar(&opts.DeleteAlreadyRead, "delete-already-read", false, "remove fully read articles from the device")
	flags.IntVar(&opts.UnreadStaleHours, "unread-stale-hours", -1, "replace unread articles older than this many hours (-1 disables)")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig resolves file and environment settings, then applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigDir: opts.ConfigDir, Path: opts.ConfigFile})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.LogFormat
	}
	if flags.Changed("folder") {
		cfg.Sync.Folder = opts.Folder
	}
	if flags.Changed("max-save-count") {
		cfg.Sync.MaxSaveCount = opts.MaxSaveCount
	}
	if flags.Changed("max-fetch-count") {
		cfg.Feed.MaxFetchCount = opts.MaxFetchCount
	}
	if flags.Changed("delete-already-read") {
		cfg.Sync.DeleteAlreadyRead = opts.DeleteAlreadyRead
	}
	if flags.Changed("unread-stale-hours") {
		cfg.Sync.UnreadStaleHours = opts.UnreadStaleHours
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// prepare loads config and builds the application for a command.
func prepare(cmd *cobra.Command, opts *RootOptions) (config.Config, runner, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, opts.newApp(cfg, loggerFor(cmd, cfg)), nil
}

func loggerFor(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.NewWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
