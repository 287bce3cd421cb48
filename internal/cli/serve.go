package cli

import (
	"os"
	"os/signal"
	"syscall"

	"opsagent/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Follow the application log and serve the status API",
		Long: `Serve tails follow.path (or the descriptor's log_location), runs one decision
cycle per batch and exposes the policy and recorded steps over HTTP on
app.http_addr. The policy is saved on shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if live {
				cfg.Agent.DryRun = false
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.NewApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "execute commands through the shell instead of a dry run")
	return cmd
}
