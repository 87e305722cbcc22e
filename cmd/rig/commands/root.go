// Package commands implements the CLI commands of rig.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/rig/internal/app"
	"go.trai.ch/rig/internal/build"
	"go.trai.ch/rig/internal/core/ports"
)

// CLI represents the command line interface for rig.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Build(ctx context.Context, targets []string, opts app.BuildOptions) error
	RuleKeys(ctx context.Context, targets []string) error
	Clean(ctx context.Context, opts app.CleanOptions) error
	ServeDaemon(ctx context.Context) error
	DaemonStatus(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	EventsQuery(ctx context.Context, opts app.EventsOptions) error
	EventsTail(ctx context.Context, opts app.EventsOptions) error
	ServeEvents(ctx context.Context, addr, store string) error
}

// logSwitch is implemented by loggers that can change format and level.
type logSwitch interface {
	SetJSON(enable bool)
	SetVerbose(enable bool)
}

// New creates a new CLI instance with the given app. log may be nil.
func New(a Application, log ports.Logger) *CLI {
	rootCmd := &cobra.Command{
		Use:           "rig",
		Short:         "An incremental build engine keyed by rule content",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	// -v belongs to --version.
	rootCmd.PersistentFlags().Bool("verbose", false, "Emit debug logs")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		s, ok := log.(logSwitch)
		if !ok {
			return
		}
		if cmd.Flags().Changed("json-logs") {
			jsonLogs, _ := cmd.Flags().GetBool("json-logs")
			s.SetJSON(jsonLogs)
		}
		if cmd.Flags().Changed("verbose") {
			verbose, _ := cmd.Flags().GetBool("verbose")
			s.SetVerbose(verbose)
		}
	}

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newRuleKeyCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newDaemonCmd())
	rootCmd.AddCommand(c.newEventsCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
