package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gaims",
		Short: "gaims runs repeated matrix games between LLM and scripted agents that talk before they act.",
		Long: `gaims plays repeated two-player matrix games (prisoner's dilemma, stag hunt,
random games and more) between decision providers. Each round agents may
observe the game, exchange messages over a communication topology, and then
commit to an action. Transcripts go to SQLite and per-episode statistics to CSV.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSolveCmd(),
		newTopologyCmd(),
	)
	return rootCmd
}
