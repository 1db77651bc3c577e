package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type loginer interface {
	Login(ctx context.Context, loginURL string) error
}

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var loginURL string

	cmd := &cobra.Command{
		Use:           "login",
		Short:         "Store a Substack session from an emailed sign-in link",
		Example:       `  readersync login --url 'https://substack.com/sign-in?token=...'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := prepare(cmd, opts)
			if err != nil {
				return err
			}
			if err := application.Login(cmd.Context(), loginURL); err != nil {
				return WrapExitError(ExitFailure, "login failed", err)
			}
			fmt.Fprintln(out(cmd), "Logged in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&loginURL, "url", "", "magic sign-in link (required)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
