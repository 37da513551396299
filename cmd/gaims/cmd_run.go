package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nordbyerik/gaims/internal/logging"
	"github.com/nordbyerik/gaims/internal/store"
	"github.com/nordbyerik/gaims/pkg/config"
	"github.com/nordbyerik/gaims/pkg/experiment"
	"github.com/nordbyerik/gaims/pkg/messaging"
	"github.com/nordbyerik/gaims/pkg/providers"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment",
		Long: `Run every episode of an experiment and print per-episode statistics.

Flags override the config file, which overrides the built-in defaults.

Example:
  gaims run --config experiments/pd.yaml --episodes 5 --db runs/pd.db --stats runs/pd.csv`,
		RunE: runExperiment,
	}

	cmd.Flags().String("config", "", "Experiment config file (YAML)")
	cmd.Flags().Int("episodes", 0, "Number of episodes")
	cmd.Flags().Int("rounds", 0, "Rounds per episode")
	cmd.Flags().String("family", "", "Game family: random, fixed, pd, stag, chicken, bos, asymmetric")
	cmd.Flags().String("topology", "", "Communication topology: full, sparse, linear, ring, star")
	cmd.Flags().Int64("seed", 0, "Experiment seed (random when unset)")
	cmd.Flags().String("db", "", "SQLite transcript database")
	cmd.Flags().String("stats", "", "CSV file for per-episode statistics")
	cmd.Flags().Bool("follow", false, "Print messages as agents send them")

	return cmd
}

// applyRunFlags copies the flags the user actually set onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.ExperimentConfig) {
	flags := cmd.Flags()
	if flags.Changed("episodes") {
		cfg.Episodes, _ = flags.GetInt("episodes")
	}
	if flags.Changed("rounds") {
		cfg.Rounds, _ = flags.GetInt("rounds")
	}
	if flags.Changed("family") {
		cfg.Game.Family, _ = flags.GetString("family")
	}
	if flags.Changed("topology") {
		cfg.Topology.Kind, _ = flags.GetString("topology")
	}
	if flags.Changed("seed") {
		s, _ := flags.GetInt64("seed")
		cfg.Seed = &s
	}
	if flags.Changed("db") {
		cfg.Store.Path, _ = flags.GetString("db")
	}
	if flags.Changed("stats") {
		cfg.StatsPath, _ = flags.GetString("stats")
	}
}

func runExperiment(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	follow, _ := cmd.Flags().GetBool("follow")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)

	opts := []experiment.RunnerOption{
		experiment.WithFactory(providers.NewFactory(logger)),
		experiment.WithLogger(logger),
	}

	if cfg.Store.Path != "" {
		db, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer db.Close()
		opts = append(opts, experiment.WithRecorder(db))
	}

	if cfg.StatsPath != "" {
		csv, err := experiment.CreateCSV(cfg.StatsPath)
		if err != nil {
			return err
		}
		defer csv.Close()
		opts = append(opts, experiment.WithRecorder(csv))
	}

	out := cmd.OutOrStdout()
	stopFollow := func() {}
	if follow {
		msgs := make(chan messaging.Message, 64)
		done := make(chan struct{})
		stopFollow = func() {
			close(msgs)
			<-done
		}
		go func() {
			defer close(done)
			for m := range msgs {
				to := "all"
				if len(m.To) > 0 {
					to = strings.Join(m.To, ",")
				}
				fmt.Fprintf(out, "[round %d] %s -> %s: %s\n", m.Round+1, m.From, to, m.Content)
			}
		}()
		opts = append(opts, experiment.WithFollow(msgs))
	}

	runner, err := experiment.NewRunner(cfg, opts...)
	if err != nil {
		stopFollow()
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("interrupt received, stopping")
			if err := runner.Stop(); err != nil {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	err = runner.Run(ctx)
	stopFollow()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Experiment %s (seed %d)\n", cfg.Name, runner.Seed())
	for _, s := range runner.Stats() {
		fmt.Fprintf(out, "episode %d: rounds=%d equilibrium_rate=%.2f failures=%d routing_misses=%d\n",
			s.Index, s.Rounds, s.EquilibriumRate, s.Failures, s.RoutingMisses)
		for i, id := range s.Agents {
			fmt.Fprintf(out, "  %-12s utility=%.2f mean=%.2f stddev=%.2f\n",
				id, s.FinalUtility[i], s.MeanPayoff[i], s.StdDevPayoff[i])
		}
	}
	return nil
}
