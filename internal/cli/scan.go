package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan FILE.eml...",
		Short: "Evaluate messages once and print their verdicts",
		Long: `Evaluate each message once and print its verdict.

Examples:
  # Scan one message with the in-process evaluator
  mailtrust scan inbox/offer.eml

  # Ask a running "mailtrust serve" instead, JSON output
  mailtrust --channel http --server http://localhost:8080 --json scan *.eml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			a, err := opts.application(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			presenterFor := opts.presenter(cmd.OutOrStdout())
			for _, path := range args {
				label := ""
				if len(args) > 1 {
					label = path
				}
				if _, err := a.Scan(cmd.Context(), path, presenterFor(label)); err != nil {
					return fmt.Errorf("scan %s: %w", path, err)
				}
			}
			return nil
		},
	}
}
