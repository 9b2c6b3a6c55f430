package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imamik/storm/cmd/storm/handlers"
)

// Stop returns the stop command.
func Stop(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [names...]",
		Short: "Stop instances without removing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Stop(cmd.Context(), *opts, args)
		},
	}
}

// Remove returns the rm command.
func Remove(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [names...]",
		Short: "Terminate instances, every swarm host when no name is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Remove(cmd.Context(), *opts, args)
		},
	}
}

// Teardown returns the teardown command.
//
// Without arguments only the swarm hosts are terminated so the discovery
// cluster can be reused by the next deploy. "teardown all" removes both.
func Teardown(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:       "teardown [all]",
		Short:     "Terminate the swarm hosts, and the discovery cluster with all",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := teardownAll(args)
			if err != nil {
				return err
			}
			return handlers.Teardown(cmd.Context(), *opts, all)
		},
	}
}

func teardownAll(args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	if args[0] != "all" {
		return false, fmt.Errorf("unknown argument %q, expected \"all\"", args[0])
	}
	return true, nil
}
