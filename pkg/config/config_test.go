package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nordbyerik/gaims/pkg/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Episodes != 1 || cfg.Rounds != 10 {
		t.Errorf("episodes, rounds = %d, %d; want 1, 10", cfg.Episodes, cfg.Rounds)
	}
	if cfg.DecisionTimeout != 30*time.Second {
		t.Errorf("DecisionTimeout = %v, want 30s", cfg.DecisionTimeout)
	}
	if cfg.Phases.Observe || !cfg.Phases.Communicate {
		t.Errorf("Phases = %+v, want observe off and communicate on", cfg.Phases)
	}
	if cfg.Seed != nil {
		t.Errorf("Seed = %d, want nil", *cfg.Seed)
	}
	gen, err := cfg.Generator()
	if err != nil || gen.Name() != "random" {
		t.Errorf("Generator() = %v, %v; want random", gen, err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
name: pd-llm
episodes: 3
rounds: 5
seed: 42
decision_timeout: 2s
parallel: true
phases:
  observe: true
  communicate: false
game:
  family: pd
  action_names: [Cooperate, Defect]
topology:
  kind: ring
agents:
  - id: alice
    provider: openai
    model: gpt-4o-mini
    persona: You are generous.
    api_key: ${GAIMS_TEST_KEY}
  - provider: scripted
    strategy: grim
`)
	t.Setenv("GAIMS_TEST_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Name != "pd-llm" || cfg.Episodes != 3 || cfg.Rounds != 5 {
		t.Errorf("loaded %q, %d episodes, %d rounds", cfg.Name, cfg.Episodes, cfg.Rounds)
	}
	if cfg.Seed == nil || *cfg.Seed != 42 {
		t.Errorf("Seed = %v, want 42", cfg.Seed)
	}
	if cfg.DecisionTimeout != 2*time.Second || !cfg.Parallel {
		t.Errorf("timeout, parallel = %v, %v", cfg.DecisionTimeout, cfg.Parallel)
	}
	if diff := cmp.Diff(PhaseConfig{Observe: true}, cfg.Phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	if cfg.Agents[0].APIKey != "sk-test" {
		t.Errorf("api key = %q, want expanded value", cfg.Agents[0].APIKey)
	}
	if !strings.HasPrefix(cfg.Agents[1].ID, "agent-") {
		t.Errorf("generated id = %q, want agent- prefix", cfg.Agents[1].ID)
	}
	// defaults survive where the file is silent
	if cfg.Game.NumActions != 2 || cfg.Logging.Level != "info" {
		t.Errorf("defaults lost: %+v, %+v", cfg.Game, cfg.Logging)
	}
	gen, err := cfg.Generator()
	if err != nil || gen.Name() != "prisoners_dilemma" {
		t.Errorf("Generator() = %v, %v", gen, err)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "rounds: 5\nepisodes: 2\n")
	t.Setenv("GAIMS_ROUNDS", "7")
	t.Setenv("GAIMS_SEED", "-3")
	t.Setenv("GAIMS_LOG_LEVEL", "debug")
	t.Setenv("GAIMS_STORE_PATH", "/tmp/gaims.db")
	t.Setenv("GAIMS_DECISION_TIMEOUT", "500ms")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Rounds != 7 {
		t.Errorf("Rounds = %d, want env override 7", cfg.Rounds)
	}
	if cfg.Episodes != 2 {
		t.Errorf("Episodes = %d, want file value 2", cfg.Episodes)
	}
	if cfg.Seed == nil || *cfg.Seed != -3 {
		t.Errorf("Seed = %v, want -3", cfg.Seed)
	}
	if cfg.Logging.Level != "debug" || cfg.Store.Path != "/tmp/gaims.db" {
		t.Errorf("level, store = %q, %q", cfg.Logging.Level, cfg.Store.Path)
	}
	if cfg.DecisionTimeout != 500*time.Millisecond {
		t.Errorf("DecisionTimeout = %v", cfg.DecisionTimeout)
	}

	t.Run("bad seed", func(t *testing.T) {
		t.Setenv("GAIMS_SEED", "lucky")
		if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parse env:") {
			t.Errorf("LoadConfig() error = %v, want parse env error", err)
		}
	})
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "rounds: [1, 2")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExperimentConfig)
	}{
		{"zero episodes", func(c *ExperimentConfig) { c.Episodes = 0 }},
		{"zero rounds", func(c *ExperimentConfig) { c.Rounds = 0 }},
		{"negative timeout", func(c *ExperimentConfig) { c.DecisionTimeout = -time.Second }},
		{"no agents", func(c *ExperimentConfig) { c.Agents = nil }},
		{"duplicate ids", func(c *ExperimentConfig) { c.Agents[1].ID = c.Agents[0].ID }},
		{"unknown provider", func(c *ExperimentConfig) { c.Agents[0].Provider = "oracle" }},
		{"llm without model", func(c *ExperimentConfig) { c.Agents[0].Provider = ProviderOpenAI }},
		{"unknown topology", func(c *ExperimentConfig) { c.Topology.Kind = "mesh" }},
		{"unknown level", func(c *ExperimentConfig) { c.Logging.Level = "shouty" }},
		{"inverted payoff range", func(c *ExperimentConfig) { c.Game.MinPayoff, c.Game.MaxPayoff = 5, 5 }},
		{"unknown family", func(c *ExperimentConfig) { c.Game.Family = "poker" }},
		{"family with three agents", func(c *ExperimentConfig) {
			c.Game.Family = "chicken"
			c.Agents = append(c.Agents, AgentConfig{ID: "carol"})
		}},
		{"fixed payoffs wrong length", func(c *ExperimentConfig) {
			c.Game.Family = "fixed"
			c.Game.Payoffs = []float64{1, 2, 3}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, core.ErrConstruction) {
				t.Errorf("Validate() error = %v, want ErrConstruction", err)
			}
		})
	}
}

func TestFixedGenerator(t *testing.T) {
	cfg := Default()
	cfg.Game.Family = "fixed"
	cfg.Game.Payoffs = []float64{3, 3, 0, 5, 5, 0, 1, 1}
	gen, err := cfg.Generator()
	if err != nil {
		t.Fatalf("Generator() error = %v", err)
	}
	m, err := gen.Generate(nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if diff := cmp.Diff([]core.Profile{{Row: 1, Col: 1}}, m.Equilibria()); diff != "" {
		t.Errorf("equilibria mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, cfg.AgentIDs()); diff != "" {
		t.Errorf("AgentIDs mismatch (-want +got):\n%s", diff)
	}
}
