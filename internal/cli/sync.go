package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ReaderSync/internal/domain"
)

type syncer interface {
	Sync(ctx context.Context) (domain.RunReport, error)
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync",
		Long: `Reconcile the device folder, pick new articles from the feed, render and
upload them, delete read or stale ones and record everything in the ledger.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	_, application, err := prepare(cmd, opts)
	if err != nil {
		return err
	}

	report, err := application.Sync(cmd.Context())
	if report.RunID == "" {
		// The pipeline never started: missing binary, unreadable cookies and the like.
		return WrapExitError(ExitCommandError, "prepare sync", err)
	}
	fmt.Fprint(out(cmd), report.Summary())
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	return nil
}
