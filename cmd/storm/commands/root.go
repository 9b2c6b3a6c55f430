// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/storm/cmd/storm/handlers"
)

// Root returns the root command for the storm CLI.
//
// The persistent flags are shared by every subcommand through one
// handlers.Options value.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "storm",
		Short:         "Provision Docker Swarm clusters across cloud providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "f", "", "Path to the topology file (default: storm.yml)")
	flags.BoolVarP(&opts.AutoApprove, "yes", "y", false, "Answer yes to every confirmation")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.StringVar(&opts.DebugLog, "debug-log", "", "Path to the debug log (default: ~/.storm/debug.log)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Log at debug level")

	// Fleet lifecycle
	cmd.AddCommand(Deploy(opts))
	cmd.AddCommand(Launch(opts))
	cmd.AddCommand(Stop(opts))
	cmd.AddCommand(Remove(opts))
	cmd.AddCommand(Teardown(opts))

	// Inspection
	cmd.AddCommand(List(opts))
	cmd.AddCommand(PS(opts))
	cmd.AddCommand(Env(opts))
	cmd.AddCommand(Compose(opts))

	// Utility commands
	cmd.AddCommand(Doctor())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
