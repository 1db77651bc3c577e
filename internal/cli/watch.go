package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

type watcher interface {
	Watch(ctx context.Context) error
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync repeatedly and serve health and metrics",
		Long: `Run a sync immediately and then every --interval until interrupted. Runs never
overlap. /healthz and /metrics are served on --listen; pass an empty value to
disable the status server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				if interval <= 0 {
					return WrapExitError(ExitCommandError, "invalid --interval", nil)
				}
				cfg.Watch.Interval = interval
			}
			if cmd.Flags().Changed("listen") {
				cfg.Watch.Listen = listen
			}

			application := opts.newApp(cfg, loggerFor(cmd, cfg))
			if err := application.Watch(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "watch stopped", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 6*time.Hour, "time between runs")
	cmd.Flags().StringVar(&listen, "listen", ":9464", "address of the health and metrics server")
	return cmd
}
