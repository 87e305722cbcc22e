package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func (c *CLI) newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the workspace daemon",
		Long: "The daemon keeps the rule key and action graph caches of a workspace warm " +
			"between builds. It is started on demand by build --daemon.",
	}

	serve := daemonAction("serve", "Run the daemon in the foreground", c.app.ServeDaemon)
	serve.Hidden = true
	cmd.AddCommand(
		serve,
		daemonAction("status", "Show daemon uptime and cache statistics", c.app.DaemonStatus),
		daemonAction("stop", "Stop the daemon of the current workspace", c.app.StopDaemon),
	)

	return cmd
}

func daemonAction(use, short string, fn func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fn(cmd.Context())
		},
	}
}
