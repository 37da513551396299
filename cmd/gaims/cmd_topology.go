package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nordbyerik/gaims/pkg/messaging"
)

func newTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology AGENT...",
		Short: "Print the adjacency of a communication topology",
		Long: `Build a communication topology over the given agents and print who can
message whom.

Example:
  gaims topology --kind star A B C`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			seed, _ := cmd.Flags().GetInt64("seed")

			t, err := messaging.NewTopology(kind, args, seed)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), t.String())
			return nil
		},
	}

	cmd.Flags().String("kind", messaging.FullyConnected, "Topology kind: full, sparse, linear, ring, star")
	cmd.Flags().Int64("seed", 0, "Seed for the sparse generator")

	return cmd
}
