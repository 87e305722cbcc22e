package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/rig/internal/app"
	"go.trai.ch/rig/internal/core/domain"
)

func (c *CLI) newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and serve the distributed build event log",
	}

	cmd.AddCommand(c.newEventsQueryCmd())
	cmd.AddCommand(c.newEventsTailCmd())
	cmd.AddCommand(c.newEventsServeCmd())

	return cmd
}

func eventsOptions(cmd *cobra.Command, runID string) app.EventsOptions {
	addr, _ := cmd.Flags().GetString("addr")
	return app.EventsOptions{
		Addr:  addr,
		RunID: runID,
		First: changedSeq(cmd, "first"),
		Last:  changedSeq(cmd, "last"),
	}
}

// changedSeq returns the sequence flag name when it was set on the command line.
func changedSeq(cmd *cobra.Command, name string) *int64 {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	n, _ := cmd.Flags().GetInt64(name)
	return domain.Seq(n)
}

func (c *CLI) newEventsQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <run-id>",
		Short: "Print the events of a run between --first and --last",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.EventsQuery(cmd.Context(), eventsOptions(cmd, args[0]))
		},
	}
	cmd.Flags().String("addr", "", "Event service address (default: the workspace daemon)")
	cmd.Flags().Int64("first", 1, "First sequence number")
	cmd.Flags().Int64("last", 0, "Last sequence number (default: the newest stored event)")
	return cmd
}

func (c *CLI) newEventsTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail <run-id>",
		Short: "Stream the events of a run until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.EventsTail(cmd.Context(), eventsOptions(cmd, args[0]))
		},
	}
	cmd.Flags().String("addr", "", "Event service address (default: the workspace daemon)")
	cmd.Flags().Int64("first", 1, "First sequence number")
	return cmd
}

func (c *CLI) newEventsServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a standalone build event service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			store, _ := cmd.Flags().GetString("store")
			return c.app.ServeEvents(cmd.Context(), addr, store)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:7420", "Listen address")
	cmd.Flags().String("store", "", "Event store: memory or redis (default [events] store)")
	return cmd
}
