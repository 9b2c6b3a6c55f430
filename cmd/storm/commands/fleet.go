package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/storm/cmd/storm/handlers"
)

// Launch returns the launch command, which creates one instance with the
// provider defaults.
func Launch(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:       "launch <provider> <name>",
		Short:     "Launch a single instance",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"aws", "azure", "digitalocean", "hetzner"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Launch(cmd.Context(), *opts, args[0], args[1])
		},
	}
}

// List returns the ls command.
func List(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List running storm instances",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.List(cmd.Context(), *opts)
		},
	}
}

// PS returns the ps command.
func PS(opts *handlers.Options) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers running on the swarm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.PS(cmd.Context(), *opts, all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show stopped containers too")

	return cmd
}

// Env returns the env command.
func Env(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "env [swarm | discovery N | N]",
		Short: "Print the Docker environment of an instance",
		Long: `Env prints export lines that point the docker client at an instance.

Examples:
  # The swarm master
  eval "$(storm env swarm)"

  # The first discovery instance
  eval "$(storm env discovery 0)"

  # The second swarm host
  eval "$(storm env 1)"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Env(cmd.Context(), *opts, args)
		},
	}
}

// Compose returns the compose command, a docker-compose passthrough against
// the swarm master.
func Compose(opts *handlers.Options) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "compose [--project-dir DIR] -- <args>",
		Short: "Run docker-compose against the swarm",
		Long: `Compose runs docker-compose against the swarm master with DISCOVERY_IP set.

Example:
  storm compose --project-dir deploy/shop -- logs web`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Compose(cmd.Context(), *opts, dir, args)
		},
	}

	cmd.Flags().StringVar(&dir, "project-dir", ".", "Directory holding docker-compose.yml")

	return cmd
}
