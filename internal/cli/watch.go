package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/mailtrust/internal/app"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE.eml...",
		Short: "Scan messages and rescan whenever a file shows a new sender",
		Args:  cobra.MinimumNArgs(1),
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			presenterFor := opts.presenter(cmd.OutOrStdout())
			labelled := len(args) > 1
			return a.Watch(ctx, args, func(path string) app.Presenter {
				if labelled {
					return presenterFor(path)
				}
				return presenterFor("")
			})
		},
	}
}
