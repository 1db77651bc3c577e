package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ReaderSync/internal/app"
	"ReaderSync/internal/domain"
)

type ledgerReader interface {
	LedgerEntries(ctx context.Context, includeDeleted bool) ([]domain.LedgerEntry, error)
}

func newLedgerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the delivery ledger",
	}

	var includeDeleted bool
	list := &cobra.Command{
		Use:           "list",
		Short:         "List delivered articles",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			entries, err := application.LedgerEntries(cmd.Context(), includeDeleted)
			if err != nil {
				return WrapExitError(ExitFailure, "read ledger", err)
			}
			return app.WriteLedger(out(cmd), entries)
		},
	}
	list.Flags().BoolVar(&includeDeleted, "deleted", false, "include articles already removed from the device")

	cmd.AddCommand(list)
	return cmd
}
