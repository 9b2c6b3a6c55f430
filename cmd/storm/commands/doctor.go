package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/storm/cmd/storm/handlers"
)

// Doctor returns the command that checks the client tools storm drives.
func Doctor() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that docker-machine, docker and docker-compose are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Doctor(cmd.Context())
		},
	}
}
