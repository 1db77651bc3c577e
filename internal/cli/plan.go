package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type planner interface {
	Plan(ctx context.Context, w io.Writer) error
}

func newPlanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync would do without changing anything",
		Long: `Reconcile the device folder and walk the feed like a sync, then print the
admissions and deletions it would perform. Nothing is rendered, uploaded,
removed or written to the ledger.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			if err := application.Plan(cmd.Context(), out(cmd)); err != nil {
				return WrapExitError(ExitFailure, "plan failed", err)
			}
			return nil
		},
	}
}
