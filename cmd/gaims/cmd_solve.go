package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nordbyerik/gaims/pkg/payoff"
)

func newSolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Sample a payoff matrix and print its pure Nash equilibria",
		Long: `Sample a payoff matrix from a game family and print it with its pure-strategy
Nash equilibria.

Example:
  gaims solve --family pd --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			family, _ := cmd.Flags().GetString("family")
			seed, _ := cmd.Flags().GetInt64("seed")
			actions, _ := cmd.Flags().GetInt("actions")
			minPayoff, _ := cmd.Flags().GetInt("min")
			maxPayoff, _ := cmd.Flags().GetInt("max")

			var gen payoff.Generator
			var err error
			if strings.EqualFold(family, "random") {
				gen, err = payoff.NewRandom(actions, 2, minPayoff, maxPayoff)
			} else {
				gen, err = payoff.Family(family)
			}
			if err != nil {
				return err
			}

			m, err := gen.Generate(rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Game: %s (seed %d)\n", gen.Name(), seed)
			fmt.Fprint(out, m.String())
			eq := m.Equilibria()
			if len(eq) == 0 {
				fmt.Fprintln(out, "No pure equilibria")
				return nil
			}
			fmt.Fprintf(out, "Pure equilibria: %v\n", eq)
			return nil
		},
	}

	cmd.Flags().String("family", "random", "Game family: random, "+strings.Join(payoff.Families(), ", "))
	cmd.Flags().Int64("seed", 0, "Sampling seed")
	cmd.Flags().Int("actions", 2, "Actions per player (random family)")
	cmd.Flags().Int("min", -10, "Minimum payoff (random family)")
	cmd.Flags().Int("max", 10, "Maximum payoff (random family)")

	return cmd
}
