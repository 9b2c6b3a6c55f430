package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/storm/cmd/storm/handlers"
)

// Deploy returns the deploy command.
//
// The deploy command brings up the whole fleet described by the topology
// file: the discovery cluster (unless one is running already), the swarm
// hosts, the built-in services and every bundle under deploy.
func Deploy(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Launch the discovery cluster and swarm hosts and deploy services",
		Long: `Deploy provisions a Docker Swarm fleet from storm.yml.

Steps:
  - Launch and bootstrap the discovery instances (skipped when they exist)
  - Launch the swarm hosts, the first one becoming the swarm master
  - Deploy registrator on every host
  - Copy the TLS certificate and scale the load balancers
  - Deploy and scale every bundle

A single confirmation is asked before anything is created. When the run
finishes you are offered to tear the instances down again.

Example:
  storm deploy -f storm.yml
  storm deploy --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), *opts)
		},
	}
}
