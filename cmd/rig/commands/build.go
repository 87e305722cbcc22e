package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/rig/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [targets...]",
		Short: "Build targets and their dependencies",
		Long: "Build targets and their dependencies. Targets are //path:name or :name relative " +
			"to the current package. Without targets every rule of the workspace is built.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noCache, _ := cmd.Flags().GetBool("no-cache")
			threads, _ := cmd.Flags().GetInt("threads")
			runID, _ := cmd.Flags().GetString("run-id")
			eventsAddr, _ := cmd.Flags().GetString("events-addr")
			useDaemon, _ := cmd.Flags().GetBool("daemon")

			return c.app.Build(cmd.Context(), args, app.BuildOptions{
				NoCache:    noCache,
				Threads:    threads,
				RunID:      runID,
				EventsAddr: eventsAddr,
				Daemon:     useDaemon,
			})
		},
	}
	cmd.Flags().BoolP("no-cache", "n", false, "Skip artifact cache reads and rebuild")
	cmd.Flags().IntP("threads", "j", 0, "Number of rules built in parallel (default [build] threads or NumCPU)")
	cmd.Flags().String("run-id", "", "Publish rule events to this distributed build run")
	cmd.Flags().String("events-addr", "", "Event service address (default: the workspace daemon)")
	cmd.Flags().Bool("daemon", false, "Run the build in the background daemon, starting it if needed")
	return cmd
}

func (c *CLI) newRuleKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rulekey [targets...]",
		Short: "Print the rule keys of targets without building",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.RuleKeys(cmd.Context(), args)
		},
	}
}

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the artifact cache and rule outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, _ := cmd.Flags().GetBool("cache")
			out, _ := cmd.Flags().GetBool("out")

			opts := app.CleanOptions{Cache: cache, Output: out}
			if !cache && !out {
				opts = app.CleanOptions{Cache: true, Output: true}
			}
			return c.app.Clean(cmd.Context(), opts)
		},
	}
	cmd.Flags().Bool("cache", false, "Only remove the artifact cache")
	cmd.Flags().Bool("out", false, "Only remove rule outputs")
	return cmd
}
